package tests

import (
	"bytes"
	"testing"
)

func TestFormLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Form Site")
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

	formId, err := subadmin.createForm("Intake", basicFormStructure(), subsite.Id)
	if err != nil {
		t.Fatal(err)
	}

	form, err := user.getForm(formId)
	if err != nil {
		t.Fatal(err)
	}
	if form.Title != "Intake" || !form.IsActive {
		t.Fatalf("unexpected form: %+v", form)
	}

	// Draft first, then final submission.
	respId, isDraft, err := user.submitResponse(formId, map[string]interface{}{"full_name": "Jo", "age": 30}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !isDraft {
		t.Fatal("response should be a draft")
	}

	respId2, isDraft, err := user.submitResponse(formId, map[string]interface{}{"full_name": "Joanna", "age": 31}, true)
	if err != nil {
		t.Fatal(err)
	}
	if isDraft {
		t.Fatal("submitted response should not be a draft")
	}
	if respId2 != respId {
		t.Fatal("resubmission should update the same response, not create a new one")
	}

	responses, err := subadmin.listFormResponses(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].IsDraft || responses[0].SubmittedAt == nil {
		t.Fatalf("response should be finalized: %+v", responses[0])
	}
	if !bytes.Contains(responses[0].Answers, []byte("Joanna")) {
		t.Fatal("latest answers should be stored")
	}
}

func TestResponseValidation(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Validation Site")
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

	formId, err := subadmin.createForm("Strict Form", basicFormStructure(), subsite.Id)
	if err != nil {
		t.Fatal(err)
	}

	// full_name is required.
	if _, _, err := user.submitResponse(formId, map[string]interface{}{"age": 5}, true); err == nil {
		t.Fatal("missing required field should be rejected")
	}

	if err := subadmin.updateForm(formId, map[string]interface{}{"is_active": false}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := user.submitResponse(formId, map[string]interface{}{"full_name": "Jo"}, true); err == nil {
		t.Fatal("inactive form should not accept responses")
	}
}

func TestFormStructureValidation(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Structure Site")
	if err != nil {
		t.Fatal(err)
	}
	subadmin, err := env.newSubadmin("subadmin1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	noName := map[string]interface{}{
		"fields": []map[string]interface{}{{"type": "text", "label": "Oops"}},
	}
	if _, err := subadmin.createForm("Bad Form", noName, subsite.Id); err == nil {
		t.Fatal("field without a name should be rejected")
	}

	duplicate := map[string]interface{}{
		"fields": []map[string]interface{}{
			{"name": "x", "type": "text"},
			{"name": "x", "type": "number"},
		},
	}
	if _, err := subadmin.createForm("Bad Form", duplicate, subsite.Id); err == nil {
		t.Fatal("duplicate field names should be rejected")
	}
}

func TestFormTenantIsolation(t *testing.T) {
	env := setupTestEnv(t)

	subsiteA, err := env.newSubsite("Site A")
	if err != nil {
		t.Fatal(err)
	}
	subsiteB, err := env.newSubsite("Site B")
	if err != nil {
		t.Fatal(err)
	}

	subadminA, err := env.newSubadmin("subadmin_a", subsiteA)
	if err != nil {
		t.Fatal(err)
	}
	userB, err := env.newUser("user_b", subsiteB)
	if err != nil {
		t.Fatal(err)
	}

	formId, err := subadminA.createForm("Site A Form", basicFormStructure(), subsiteA.Id)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := userB.getForm(formId); err == nil {
		t.Fatal("user from another subsite should not read the form")
	}
	if _, _, err := userB.submitResponse(formId, map[string]interface{}{"full_name": "Jo"}, true); err == nil {
		t.Fatal("user from another subsite should not submit to the form")
	}

	forms, err := userB.listForms()
	if err != nil {
		t.Fatal(err)
	}
	if len(forms) != 0 {
		t.Fatalf("listing should be tenant scoped, got %d forms", len(forms))
	}
}

func TestResponsePrivacy(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Privacy Site")
	if err != nil {
		t.Fatal(err)
	}
	subadmin, err := env.newSubadmin("subadmin1", subsite)
	if err != nil {
		t.Fatal(err)
	}
	user1, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}
	user2, err := env.newUser("user2", subsite)
	if err != nil {
		t.Fatal(err)
	}

	formId, err := subadmin.createForm("Private Form", basicFormStructure(), subsite.Id)
	if err != nil {
		t.Fatal(err)
	}

	respId, _, err := user1.submitResponse(formId, map[string]interface{}{"full_name": "Jo"}, true)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user1.getFormResponse(formId, respId); err != nil {
		t.Fatal("owner should read their own response")
	}
	if _, err := subadmin.getFormResponse(formId, respId); err != nil {
		t.Fatal("subadmin should read responses in their subsite")
	}
	if _, err := user2.getFormResponse(formId, respId); err == nil {
		t.Fatal("another user should not read the response")
	}
	if _, err := user2.listFormResponses(formId); err == nil {
		t.Fatal("regular user should not list all responses")
	}
}

func TestResponseDocumentExport(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Export Site")
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

	formId, err := subadmin.createForm("Export Form", basicFormStructure(), subsite.Id)
	if err != nil {
		t.Fatal(err)
	}

	respId, _, err := user.submitResponse(formId, map[string]interface{}{"full_name": "Jo Smith", "age": 42}, true)
	if err != nil {
		t.Fatal(err)
	}

	document, err := user.responseDocument(formId, respId)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(document, []byte("Export Form")) {
		t.Fatal("document should contain the form title")
	}
	if !bytes.Contains(document, []byte("Jo Smith")) {
		t.Fatal("document should contain the answers")
	}
	if !bytes.Contains(document, []byte("Full Name")) {
		t.Fatal("document should use the field labels")
	}
}

func TestFormDeletionRemovesResponses(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Deletion Site")
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

	formId, err := subadmin.createForm("Short Lived", basicFormStructure(), subsite.Id)
	if err != nil {
		t.Fatal(err)
	}
	respId, _, err := user.submitResponse(formId, map[string]interface{}{"full_name": "Jo"}, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := subadmin.deleteForm(formId); err != nil {
		t.Fatal(err)
	}

	if _, err := user.getForm(formId); err == nil {
		t.Fatal("deleted form should be gone")
	}
	if _, err := user.getFormResponse(formId, respId); err == nil {
		t.Fatal("responses of deleted form should be gone")
	}
}
