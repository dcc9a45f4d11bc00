package domain

import (
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
)

func TestNormalizePackageName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Django", "django"},
		{"django_oidc", "django-oidc"},
		{"zope.interface", "zope-interface"},
		{"Foo__Bar--baz", "foo-bar-baz"},
		{"  cloudbridge ", "cloudbridge"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePackageName(tt.in); got != tt.want {
				t.Errorf("NormalizePackageName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRequirements_Duplicates(t *testing.T) {
	tests := []struct {
		name string
		reqs Requirements
		want []string
	}{
		{
			name: "no duplicates",
			reqs: Requirements{{Name: "cloudbridge"}, {Name: "djcloudbridge"}},
		},
		{
			name: "anonymous entries ignored",
			reqs: Requirements{{Kind: KindEditable}, {Kind: KindEditable}},
		},
		{
			name: "normalised duplicates",
			reqs: Requirements{{Name: "django_oidc"}, {Name: "Django-OIDC"}, {Name: "boss-oidc"}},
			want: []string{"django-oidc"},
		},
		{
			name: "sorted output",
			reqs: Requirements{{Name: "b"}, {Name: "a"}, {Name: "b"}, {Name: "a"}},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.reqs.Duplicates()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Duplicates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequirements_Validate(t *testing.T) {
	ok := Requirements{{Name: "cloudbridge", Line: 1}, {Name: "djcloudbridge", Line: 2}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	dup := Requirements{{Name: "cloudbridge", Line: 1}, {Name: "CloudBridge", Line: 4}}
	err := dup.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for duplicate package")
	}
	if !IsValidation(err) {
		t.Errorf("Validate() error should be a ValidationError, got %T", err)
	}
	if !strings.Contains(err.Error(), `"cloudbridge" listed more than once (lines 1, 4)`) {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRequirements_FindAndNames(t *testing.T) {
	reqs := Requirements{
		{Name: "cloudlaunch-cli"},
		{Kind: KindEditable, Location: ".[test]"},
		{Name: "django_oidc"},
	}

	if got := strings.Join(reqs.Names(), ","); got != "cloudlaunch-cli,django_oidc" {
		t.Errorf("Names() = %q", got)
	}
	if r, ok := reqs.Find("Django-OIDC"); !ok || r.Name != "django_oidc" {
		t.Errorf("Find(Django-OIDC) = %+v, %v", r, ok)
	}
	if _, ok := reqs.Find(""); ok {
		t.Error("Find(\"\") should not match anonymous entries")
	}
}

func TestRequirement_PinnedAndAllows(t *testing.T) {
	pinned := Requirement{Specifier: "==2.0.1"}
	if v, ok := pinned.Pinned(); !ok || v != "2.0.1" {
		t.Errorf("Pinned() = (%q, %v), want (2.0.1, true)", v, ok)
	}
	if _, ok := (Requirement{Specifier: ">=1.0,<2.0"}).Pinned(); ok {
		t.Error("range specifier should not be pinned")
	}

	c, err := semver.NewConstraint(">= 1.0, < 2.0")
	if err != nil {
		t.Fatalf("NewConstraint: %v", err)
	}
	ranged := Requirement{Specifier: ">=1.0,<2.0", Constraint: c}

	tests := []struct {
		version string
		want    bool
	}{
		{"1.0.0", true},
		{"1.9.3", true},
		{"2.0.0", false},
		{"0.9", false},
	}
	for _, tt := range tests {
		got, err := ranged.Allows(tt.version)
		if err != nil {
			t.Fatalf("Allows(%q) error = %v", tt.version, err)
		}
		if got != tt.want {
			t.Errorf("Allows(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}

	if _, err := ranged.Allows("not a version"); err == nil {
		t.Error("Allows() expected error for unparsable version")
	}

	if ok, _ := (Requirement{}).Allows("anything"); !ok {
		t.Error("requirement without constraint should allow every version")
	}
}

func TestRequirementKind_String(t *testing.T) {
	tests := []struct {
		kind RequirementKind
		want string
	}{
		{KindPackage, "package"},
		{KindEditable, "editable"},
		{KindVCS, "vcs"},
		{RequirementKind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
