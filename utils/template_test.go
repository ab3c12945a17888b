package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyPlaceholders(t *testing.T) {
	out := ApplyPlaceholders("Hello {name}, from {my_name}", map[string]string{
		"name":    "Budi",
		"my_name": "Admin",
	})
	assert.Equal(t, "Hello Budi, from Admin", out)
}

func TestApplyPlaceholdersUnknownKeyKept(t *testing.T) {
	out := ApplyPlaceholders("Hi {name} {missing}", map[string]string{"name": "A"})
	assert.Equal(t, "Hi A {missing}", out)
}

func TestApplyPlaceholdersEmptyValueKept(t *testing.T) {
	out := ApplyPlaceholders("Hi {name}", map[string]string{"name": ""})
	assert.Equal(t, "Hi {name}", out)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "628123456789", NormalizePhone("08123456789"))
	assert.Equal(t, "628123456789", NormalizePhone("+62 812-3456-789"))
	assert.Equal(t, "628123456789", NormalizePhone("628123456789"))
}
