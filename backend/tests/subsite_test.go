package tests

import (
	"testing"
)

func TestSubsiteCreation(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	subsite, err := admin.createSubsite("My Great Site!")
	if err != nil {
		t.Fatal(err)
	}
	if subsite.Slug != "my-great-site" {
		t.Fatalf("unexpected slug '%v'", subsite.Slug)
	}
	if subsite.AccessCode == "" {
		t.Fatal("access code should be generated when not provided")
	}

	if _, err := admin.createSubsite("My Great Site!"); err == nil {
		t.Fatal("duplicate slug should be rejected")
	}
}

func TestSubsiteManagementIsAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Admin Only Test")
	if err != nil {
		t.Fatal(err)
	}

	subadmin, err := env.newSubadmin("subadmin1", subsite)
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := subadmin.createSubsite("Not Allowed"); err == nil {
		t.Fatal("subadmin should not create subsites")
	}
	if err := subadmin.deleteSubsite(subsite.Id); err == nil {
		t.Fatal("subadmin should not delete subsites")
	}
	if _, err := user.listSubsites(); err == nil {
		t.Fatal("regular user should not list subsites")
	}

	// Subadmins see only their own subsite, with its access code.
	listed, err := subadmin.listSubsites()
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].Id != subsite.Id {
		t.Fatalf("subadmin should see exactly their subsite, got %+v", listed)
	}
	if listed[0].AccessCode != subsite.AccessCode {
		t.Fatal("subadmin should see their subsite's access code")
	}
}

func TestInactiveSubsiteBlocksRegistration(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Closing Soon")
	if err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.updateSubsite(subsite.Id, map[string]interface{}{"is_active": false}); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	if _, err := c.register("late", "late@mail.com", "password123", subsite.Slug, subsite.AccessCode); err == nil {
		t.Fatal("registration against inactive subsite should be rejected")
	}
}

func TestSubsiteDeletionCascades(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Doomed Site")
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("doomed_user", subsite)
	if err != nil {
		t.Fatal(err)
	}
	subadmin, err := env.newSubadmin("doomed_subadmin", subsite)
	if err != nil {
		t.Fatal(err)
	}

	formId, err := subadmin.createForm("Doomed Form", basicFormStructure(), subsite.Id)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := user.submitResponse(formId, map[string]interface{}{"full_name": "Jo"}, true); err != nil {
		t.Fatal(err)
	}
	if _, err := user.createTicket("Doomed Ticket", "help"); err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.deleteSubsite(subsite.Id); err != nil {
		t.Fatal(err)
	}

	if _, err := user.me(); err == nil {
		t.Fatal("user of deleted subsite should no longer authenticate")
	}

	forms, err := admin.listForms()
	if err != nil {
		t.Fatal(err)
	}
	if len(forms) != 0 {
		t.Fatalf("forms of deleted subsite should be gone, got %d", len(forms))
	}

	tickets, err := admin.listTickets()
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 0 {
		t.Fatalf("tickets of deleted subsite should be gone, got %d", len(tickets))
	}
}
