package workflow

import (
	"testing"

	"github.com/mmtelinfra/sitestock_backend/models"
)

func TestRouteContext(t *testing.T) {
	cases := []struct {
		activityType models.ActivityType
		phase        string
		subPhase     string
		want         RouteKind
	}{
		{models.ActivityTypeDismantling, "store-dispatch", "", RouteReconcile},
		{models.ActivityTypeDismantling, "dispatch", "", RouteReconcile},
		{models.ActivityTypeDismantling, "Dispatch", "", RouteReconcile},
		{models.ActivityTypeDismantling, "survey", "", RouteNone},

		{models.ActivityTypeRelocation, "installation", "store-operator", RouteReconcile},
		{models.ActivityTypeRelocation, "installation", "inventory", RouteReconcile},
		{models.ActivityTypeRelocation, "installation", "civil-works", RouteGatedRequest},
		{models.ActivityTypeRelocation, "installation", "telecom-works", RouteGatedRequest},
		{models.ActivityTypeRelocation, "installation", "rigging", RouteDirectAllocate},
		{models.ActivityTypeRelocation, "installation", "documentation", RouteNone},

		{models.ActivityTypeCow, "deployment", "store-operator", RouteReconcile},
		{models.ActivityTypeCow, "deployment", "civil-works", RouteGatedRequest},
		{models.ActivityTypeCow, "deployment", " Rigging ", RouteDirectAllocate},
		{models.ActivityTypeCow, "deployment", "", RouteNone},

		{models.ActivityType("maintenance"), "dispatch", "rigging", RouteNone},
	}

	for _, c := range cases {
		got := RouteContext(c.activityType, c.phase, c.subPhase)
		if got != c.want {
			t.Fatalf("RouteContext(%s, %q, %q) = %s, want %s", c.activityType, c.phase, c.subPhase, got, c.want)
		}
	}
}
