package capability

import "testing"

func TestValidateScopedQuery(t *testing.T) {
	cases := []struct {
		name    string
		scope   string
		query   string
		wantErr bool
	}{
		{"matches scope prefix", "branch1", "SELECT * FROM branch1_tasks", false},
		{"wrong scope", "branch1", "SELECT * FROM branch2_tasks", true},
		{"no scoped table at all", "branch1", "SELECT 1", true},
		{"empty scope rejected", "", "SELECT * FROM _tasks", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateScopedQuery(c.scope, c.query)
			if (err != nil) != c.wantErr {
				t.Errorf("ValidateScopedQuery(%q, %q) error = %v, wantErr %v", c.scope, c.query, err, c.wantErr)
			}
		})
	}
}
