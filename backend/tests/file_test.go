package tests

import (
	"bytes"
	"testing"
)

func TestFileUploadAndDownload(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("File Site")
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("%PDF-1.4 pretend this is a pdf")

	fileId, err := user.uploadFile("report.pdf", content, false)
	if err != nil {
		t.Fatal(err)
	}

	info, err := user.getFile(fileId)
	if err != nil {
		t.Fatal(err)
	}
	if info.OriginalName != "report.pdf" || info.FileType != "document" {
		t.Fatalf("unexpected file info: %+v", info)
	}
	if info.FileSize != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), info.FileSize)
	}

	downloaded, err := user.downloadFile(fileId)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(downloaded, content) {
		t.Fatal("downloaded bytes should be identical to the upload")
	}
}

func TestFileExtensionAllowList(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Extension Site")
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.uploadFile("malware.exe", []byte("nope"), false); err == nil {
		t.Fatal("disallowed extension should be rejected")
	}
	if _, err := user.uploadFile("noextension", []byte("nope"), false); err == nil {
		t.Fatal("file without extension should be rejected")
	}
	if _, err := user.uploadFile("photo.JPG", []byte("jpeg bytes"), false); err != nil {
		t.Fatal("extension check should be case insensitive")
	}
}

func TestFileVisibility(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Visibility Site")
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

	privateId, err := user1.uploadFile("private.pdf", []byte("private"), false)
	if err != nil {
		t.Fatal(err)
	}
	publicId, err := user1.uploadFile("public.pdf", []byte("public"), true)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user2.getFile(privateId); err == nil {
		t.Fatal("private file should not be visible to other users")
	}
	if _, err := user2.downloadFile(privateId); err == nil {
		t.Fatal("private file should not be downloadable by other users")
	}

	if _, err := user2.getFile(publicId); err != nil {
		t.Fatal("public file should be visible inside the subsite")
	}
	data, err := user2.downloadFile(publicId)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("public")) {
		t.Fatal("public download should return the uploaded bytes")
	}

	files, err := user2.listFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Id != publicId {
		t.Fatalf("user2 should see only the public file, got %+v", files)
	}
}

func TestPublicFilesDoNotCrossSubsites(t *testing.T) {
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
	userB, err := env.newUser("user_b", subsiteB)
	if err != nil {
		t.Fatal(err)
	}

	publicId, err := userA.uploadFile("shared.pdf", []byte("shared in a"), true)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := userB.getFile(publicId); err == nil {
		t.Fatal("public files should not be visible outside their subsite")
	}
}

func TestFileDeletion(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Deletion Site")
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("user1", subsite)
	if err != nil {
		t.Fatal(err)
	}

	fileId, err := user.uploadFile("temp.pdf", []byte("temporary"), false)
	if err != nil {
		t.Fatal(err)
	}

	if err := user.deleteFile(fileId); err != nil {
		t.Fatal(err)
	}
	if _, err := user.getFile(fileId); err == nil {
		t.Fatal("deleted file should be gone")
	}
	if _, err := user.downloadFile(fileId); err == nil {
		t.Fatal("deleted file should not be downloadable")
	}
}

func TestFileAttachedToFormResponse(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Attachment Site")
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

	formId, err := subadmin.createForm("Attachment Form", basicFormStructure(), subsite.Id)
	if err != nil {
		t.Fatal(err)
	}
	respId, _, err := user.submitResponse(formId, map[string]interface{}{"full_name": "Jo"}, false)
	if err != nil {
		t.Fatal(err)
	}

	fileId, err := user.uploadFileForResponse("evidence.png", []byte("png bytes"), respId)
	if err != nil {
		t.Fatal(err)
	}

	response, err := user.getFormResponse(formId, respId)
	if err != nil {
		t.Fatal(err)
	}
	if len(response.FileIds) != 1 || response.FileIds[0] != fileId {
		t.Fatalf("response should list its attachment, got %+v", response.FileIds)
	}
}
