package golioth

import "testing"

func TestManifestNeedsUpdateComparesVersionOnly(t *testing.T) {
	current := Component{Version: "1.0.0", URI: "/a"}
	desired := Component{Version: "1.0.1", URI: "/a"}
	if !ManifestNeedsUpdate(current, desired) {
		t.Fatal("expected differing versions to need an update")
	}
	if ManifestNeedsUpdate(current, current) {
		t.Fatal("identical versions should not need an update")
	}
}

func TestManifestFirstComponent(t *testing.T) {
	empty := Manifest{}
	if _, ok := empty.FirstComponent(); ok {
		t.Fatal("expected no first component on an empty manifest")
	}

	m := Manifest{Components: []Component{{Version: "2.0.0"}, {Version: "3.0.0"}}}
	c, ok := m.FirstComponent()
	if !ok || c.Version != "2.0.0" {
		t.Fatalf("got (%+v, %v), want first component version 2.0.0", c, ok)
	}
}
