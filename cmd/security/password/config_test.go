package password

import (
	"os"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	// Ensure env is clean for this test.
	clearEnv := []string{
		"PTW_PASSWORD_MIN_LEN",
		"PTW_PASSWORD_MAX_LEN",
		"PTW_PASSWORD_REQUIRE_CLASSES",
		"PTW_BCRYPT_COST",
	}
	for _, k := range clearEnv {
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	def := DefaultConfig()
	if cfg.Policy.MinLength != def.Policy.MinLength {
		t.Fatalf("min length mismatch")
	}
	if cfg.Cost != def.Cost {
		t.Fatalf("cost mismatch")
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("PTW_PASSWORD_MIN_LEN", "10")
	t.Setenv("PTW_PASSWORD_MAX_LEN", "64")
	t.Setenv("PTW_PASSWORD_REQUIRE_CLASSES", "false")
	t.Setenv("PTW_BCRYPT_COST", "10")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 64 {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Policy.RequireLower || cfg.Policy.RequireSymbol {
		t.Fatalf("class toggle failed: %+v", cfg.Policy)
	}
	if cfg.Cost != 10 {
		t.Fatalf("cost override failed: %d", cfg.Cost)
	}
}

func TestFromEnv_InvalidMinMax(t *testing.T) {
	t.Setenv("PTW_PASSWORD_MIN_LEN", "20")
	t.Setenv("PTW_PASSWORD_MAX_LEN", "10")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected error")
	}
}
