package validator

import (
	"testing"
)

type testPayload struct {
	Identity string `json:"identity" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Color    string `json:"color" validate:"omitempty,hexcolor"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Identity: "user#1042",
		Email:    "alice@example.com",
		Color:    "#36c5f0",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Identity: "",
		Email:    "invalid",
		Color:    "yellow",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundEmail := false
	for _, v := range vErrs {
		if v.Field == "email" {
			foundEmail = true
		}
	}

	if !foundEmail {
		t.Fatal("expected email field to be present in validation errors")
	}
}
