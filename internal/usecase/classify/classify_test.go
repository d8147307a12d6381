package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPII(t *testing.T) {
	tests := []struct {
		text string
		want PIIType
		ok   bool
	}{
		{"john@example.com", PIIEmail, true},
		{"  jane.doe@mail.co.uk \n", PIIEmail, true},
		{"(555) 123-4567", PIIPhone, true},
		{"+1 555.123.4567", PIIPhone, true},
		{"123-45-6789", PIISSN, true},
		{"4111 1111 1111 1111", PIICreditCard, true},
		{"4111-1111-1111-1111", PIICreditCard, true},
		{"John Smith", PIIName, true},
		{"221 Baker Street", PIIAddress, true},
		{"42 Wallaby Way, Sydney", PIIAddress, true},
		{"hello world", "", false},
		{"", "", false},
		{"Total: 42", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectPII(tt.text)
		assert.Equal(t, tt.ok, ok, "DetectPII(%q)", tt.text)
		assert.Equal(t, tt.want, got, "DetectPII(%q)", tt.text)
	}
	assert.True(t, LooksLikePII("john@example.com"))
	assert.False(t, LooksLikePII("Submit"))
}

func TestIsDynamicAttribute(t *testing.T) {
	dynamic := []struct{ name, value string }{
		{"id", "a1b2c3d4e5f6a1b2"},
		{"id", "0f8fad5b-d9cb-469f-a165-70867728950e"},
		{"id", ":r1f:"},
		{"id", "react-select-3-input"},
		{"id", "ember412"},
		{"id", "ng-tns-c12"},
		{"_ngcontent-abc", "_ngcontent-abc-c1"},
		{"id", "field_1697041234"},
		{"id", "temp-field"},
		{"class", "randomized"},
		{"data-testid", "row-12"},
		{"id", "test-42"},
	}
	for _, d := range dynamic {
		assert.True(t, IsDynamicAttribute(d.name, d.value), "%s=%q", d.name, d.value)
	}

	stable := []struct{ name, value string }{
		{"id", "billing-address"},
		{"id", "email"},
		{"data-field", "phone"},
		{"data-testid", "user-email"},
		{"id", ""},
	}
	for _, s := range stable {
		assert.False(t, IsDynamicAttribute(s.name, s.value), "%s=%q", s.name, s.value)
	}
}

func TestIsTestAttribute(t *testing.T) {
	for _, name := range []string{"data-testid", "data-test-id", "data-test", "data-cy", "DATA-QA"} {
		assert.True(t, IsTestAttribute(name), name)
	}
	assert.False(t, IsTestAttribute("data-field"))
}

func TestIsFrameworkClass(t *testing.T) {
	for _, cls := range []string{"_a1b2c3", "_17o99wp0", "css-1x2y3z", "sc-bdfBwQ", "a1b2c3d4", "css-in-js-button", "s-a1b2c3"} {
		assert.True(t, IsFrameworkClass(cls), cls)
	}
	for _, cls := range []string{"customer-info", "btn-primary", "_ab", "email"} {
		assert.False(t, IsFrameworkClass(cls), cls)
	}
}

func TestIsSemanticClass(t *testing.T) {
	for _, cls := range []string{"customer-info", "billingAddress", "user_email", "card-number", "zip"} {
		assert.True(t, IsSemanticClass(cls), cls)
	}
	for _, cls := range []string{"_a1b2c3", "wrapper", "dp-pii-selected", "col-6", "has space", "css-user1"} {
		assert.False(t, IsSemanticClass(cls), cls)
	}
}

func TestSemanticClassesDedupes(t *testing.T) {
	got := SemanticClasses([]string{"row", "billing", "_x1y2z3", "billing", "email-field"})
	assert.Equal(t, []string{"billing", "email-field"}, got)
	assert.Nil(t, SemanticClasses([]string{"row", "col"}))
}

func TestUsableClass(t *testing.T) {
	assert.True(t, UsableClass("row"))
	assert.False(t, UsableClass("dp-pii-hover"))
	assert.False(t, UsableClass("sc-bdfBwQ"))
	assert.False(t, UsableClass("w-1/2"))
}

func TestWordLikeAndShapes(t *testing.T) {
	assert.True(t, IsWordLike("a_b-1"))
	assert.False(t, IsWordLike("a:b"))
	assert.True(t, IsUUID("7C9E6679-7425-40DE-944B-E07FC1F90AE7"))
	assert.False(t, IsUUID("7c9e6679"))
	assert.True(t, IsHashLike("deadbeef"))
	assert.False(t, IsHashLike("deadbee"))
}
