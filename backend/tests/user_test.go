package tests

import (
	"errors"
	"testing"
)

func TestUserRegistrationAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Registration Test")
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	info, err := user.me()
	if err != nil {
		t.Fatal(err)
	}
	if info.Username != "user1" || info.Role != "user" {
		t.Fatalf("unexpected user info: %+v", info)
	}
	if info.SubsiteId == nil || *info.SubsiteId != subsite.Id {
		t.Fatal("user should belong to the registration subsite")
	}
	if info.LastLogin == nil {
		t.Fatal("last login should be stamped after login")
	}
}

func TestRegistrationRejectsDuplicates(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Duplicate Test")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.newUser("user1", subsite); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	if _, err := c.register("user1", "other@mail.com", "password123", subsite.Slug, subsite.AccessCode); err == nil {
		t.Fatal("duplicate username should be rejected")
	}
	if _, err := c.register("user2", "user1@mail.com", "password123", subsite.Slug, subsite.AccessCode); err == nil {
		t.Fatal("duplicate email should be rejected")
	}
}

func TestRegistrationChecksAccessCode(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Access Code Test")
	if err != nil {
		t.Fatal(err)
	}
	if subsite.AccessCode == "" {
		t.Fatal("created subsite should have a generated access code")
	}

	c := env.newClient()
	if _, err := c.register("userx", "userx@mail.com", "password123", subsite.Slug, "wrong-code"); err == nil {
		t.Fatal("registration with wrong access code should be rejected")
	}
	if _, err := c.register("userx", "userx@mail.com", "password123", "no-such-subsite", ""); err == nil {
		t.Fatal("registration against unknown subsite should be rejected")
	}
}

func TestUserListingScopes(t *testing.T) {
	env := setupTestEnv(t)

	subsiteA, err := env.newSubsite("Site A")
	if err != nil {
		t.Fatal(err)
	}
	subsiteB, err := env.newSubsite("Site B")
	if err != nil {
		t.Fatal(err)
	}

	userA, err := env.newUser("user_a", subsiteA)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.newUser("user_b", subsiteB); err != nil {
		t.Fatal(err)
	}

	subadminA, err := env.newSubadmin("subadmin_a", subsiteA)
	if err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	allUsers, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	// admin + 2 users + 1 subadmin
	if len(allUsers) != 4 {
		t.Fatalf("admin should see 4 users, got %d", len(allUsers))
	}

	siteAUsers, err := subadminA.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(siteAUsers) != 2 {
		t.Fatalf("subadmin should see 2 users in their subsite, got %d", len(siteAUsers))
	}
	for _, u := range siteAUsers {
		if u.SubsiteId == nil || *u.SubsiteId != subsiteA.Id {
			t.Fatalf("subadmin listing leaked user from another subsite: %+v", u)
		}
	}

	if _, err := userA.listUsers(); err == nil {
		t.Fatal("regular users should not be able to list users")
	}
}

func TestSubadminCannotTouchOtherSubsites(t *testing.T) {
	env := setupTestEnv(t)

	subsiteA, err := env.newSubsite("Site A")
	if err != nil {
		t.Fatal(err)
	}
	subsiteB, err := env.newSubsite("Site B")
	if err != nil {
		t.Fatal(err)
	}

	userB, err := env.newUser("user_b", subsiteB)
	if err != nil {
		t.Fatal(err)
	}

	subadminA, err := env.newSubadmin("subadmin_a", subsiteA)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := subadminA.getUser(userB.userId); err == nil {
		t.Fatal("subadmin should not read users of another subsite")
	}
	if err := subadminA.updateUser(userB.userId, map[string]interface{}{"is_active": false}); err == nil {
		t.Fatal("subadmin should not update users of another subsite")
	}
	if err := subadminA.deleteUser(userB.userId); err == nil {
		t.Fatal("subadmin should not delete users of another subsite")
	}
	if _, err := subadminA.createUser("sneaky", "sneaky@mail.com", "password123", "user", subsiteB.Id); err == nil {
		t.Fatal("subadmin should not create users in another subsite")
	}
	if _, err := subadminA.createUser("peer", "peer@mail.com", "password123", "subadmin", subsiteA.Id); err == nil {
		t.Fatal("subadmin should not create other subadmins")
	}
}

func TestDeactivatedUserCannotAuthenticate(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Deactivation Test")
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.updateUser(user.userId, map[string]interface{}{"is_active": false}); err != nil {
		t.Fatal(err)
	}

	// Existing token is rejected once the account is deactivated.
	if _, err := user.me(); err == nil {
		t.Fatal("deactivated user should not be able to use the api")
	}

	c := env.newClient()
	err = c.login(loginInfo{Email: "user1@mail.com", Password: "user1_password"})
	if err == nil {
		t.Fatal("deactivated user should not be able to login")
	}

	if err := admin.updateUser(user.userId, map[string]interface{}{"is_active": true}); err != nil {
		t.Fatal(err)
	}
	if _, err := user.me(); err != nil {
		t.Fatal("reactivated user should be able to use the api again")
	}
}

func TestChangeAndResetPassword(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Password Test")
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	if err := user.changePassword("wrong_password", "new_password123"); err == nil {
		t.Fatal("change password with wrong old password should fail")
	}
	if err := user.changePassword("user1_password", "new_password123"); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	if err := c.login(loginInfo{Email: "user1@mail.com", Password: "user1_password"}); err == nil {
		t.Fatal("old password should no longer work")
	}
	if err := c.login(loginInfo{Email: "user1@mail.com", Password: "new_password123"}); err != nil {
		t.Fatal(err)
	}

	subadmin, err := env.newSubadmin("subadmin1", subsite)
	if err != nil {
		t.Fatal(err)
	}
	if err := subadmin.resetPassword(user.userId, "reset_password123"); err != nil {
		t.Fatal(err)
	}

	c2 := env.newClient()
	if err := c2.login(loginInfo{Email: "user1@mail.com", Password: "reset_password123"}); err != nil {
		t.Fatal(err)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	_, err := c.me()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
