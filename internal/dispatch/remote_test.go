package dispatch

import "testing"

func TestSplitRemoteTarget(t *testing.T) {
	cases := []struct {
		target        string
		wantNode      string
		wantComponent string
		wantOK        bool
	}{
		{"node-1/builder", "node-1", "builder", true},
		{"local-agent", "", "", false},
		{"node-1/", "", "", false},
		{"/builder", "", "", false},
	}
	for _, c := range cases {
		nodeID, component, ok := splitRemoteTarget(c.target)
		if ok != c.wantOK || nodeID != c.wantNode || component != c.wantComponent {
			t.Errorf("splitRemoteTarget(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.target, nodeID, component, ok, c.wantNode, c.wantComponent, c.wantOK)
		}
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"node-1": "https://node1.internal:9443"}
	url, ok := r.BaseURL("node-1")
	if !ok || url != "https://node1.internal:9443" {
		t.Errorf("BaseURL = (%q, %v)", url, ok)
	}
	if _, ok := r.BaseURL("unknown"); ok {
		t.Error("BaseURL should report false for an unknown node")
	}
}
