package tests

import (
	"testing"

	"github.com/google/uuid"
)

func TestDirectedMessages(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Message Site")
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

	msgId, err := user1.sendMessage(map[string]interface{}{
		"subject": "Hello", "content": "hi there", "receiver_id": user2.userId,
	})
	if err != nil {
		t.Fatal(err)
	}

	inbox, err := user2.inbox(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 || inbox[0].Id != msgId {
		t.Fatalf("receiver inbox should contain the message, got %+v", inbox)
	}
	if inbox[0].IsRead {
		t.Fatal("message should start unread")
	}

	// Reading the message as the receiver marks it read.
	msg, err := user2.getMessage(msgId)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "hi there" {
		t.Fatalf("unexpected content '%v'", msg.Content)
	}

	unread, err := user2.inbox(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 0 {
		t.Fatalf("message should be marked read after retrieval, got %d unread", len(unread))
	}

	sent, err := user1.sentMessages()
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0].Id != msgId {
		t.Fatalf("sender should see the message in sent, got %+v", sent)
	}
}

func TestMessagePrivacy(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Privacy Site")
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
	user3, err := env.newUser("user3", subsite)
	if err != nil {
		t.Fatal(err)
	}

	msgId, err := user1.sendMessage(map[string]interface{}{
		"content": "secret", "receiver_id": user2.userId,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user3.getMessage(msgId); err == nil {
		t.Fatal("third user should not read a directed message")
	}

	subadmin, err := env.newSubadmin("subadmin1", subsite)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := subadmin.getMessage(msgId); err != nil {
		t.Fatal("subadmin should read messages in their subsite")
	}
}

func TestBroadcastMessages(t *testing.T) {
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
	userA, err := env.newUser("user_a", subsiteA)
	if err != nil {
		t.Fatal(err)
	}
	userB, err := env.newUser("user_b", subsiteB)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := userA.sendMessage(map[string]interface{}{
		"content": "not allowed", "is_global": true,
	}); err == nil {
		t.Fatal("regular users should not send broadcasts")
	}

	msgId, err := subadminA.sendMessage(map[string]interface{}{
		"subject": "Notice", "content": "maintenance tonight", "is_global": true,
	})
	if err != nil {
		t.Fatal(err)
	}

	inboxA, err := userA.inbox(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(inboxA) != 1 || inboxA[0].Id != msgId {
		t.Fatalf("subsite member should see the broadcast, got %+v", inboxA)
	}

	inboxB, err := userB.inbox(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(inboxB) != 0 {
		t.Fatal("broadcast should not leak into other subsites")
	}
}

func TestThreadTraversal(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Thread Site")
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

	rootId, err := user1.sendMessage(map[string]interface{}{
		"subject": "Question", "content": "first", "receiver_id": user2.userId,
	})
	if err != nil {
		t.Fatal(err)
	}

	reply1, err := user2.reply(rootId, "second")
	if err != nil {
		t.Fatal(err)
	}
	reply2, err := user1.reply(reply1, "third")
	if err != nil {
		t.Fatal(err)
	}

	expected := []uuid.UUID{rootId, reply1, reply2}

	// The full thread is returned from any node, each message exactly once,
	// ordered by creation time.
	for _, start := range expected {
		thread, err := user1.getThread(start)
		if err != nil {
			t.Fatal(err)
		}
		if len(thread) != len(expected) {
			t.Fatalf("thread from %v should have %d messages, got %d", start, len(expected), len(thread))
		}
		for i, msg := range thread {
			if msg.Id != expected[i] {
				t.Fatalf("thread from %v out of order at %d: got %v want %v", start, i, msg.Id, expected[i])
			}
		}
	}

	// Retrieving the thread as a receiver flips the unread flags on their
	// messages in it.
	if _, err := user2.getThread(rootId); err != nil {
		t.Fatal(err)
	}
	unread, err := user2.inbox(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 0 {
		t.Fatalf("thread retrieval should mark the receiver's messages read, %d still unread", len(unread))
	}
}

func TestReplySubjectAndReceiver(t *testing.T) {
	env := setupTestEnv(t)

	subsite, err := env.newSubsite("Reply Site")
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

	rootId, err := user1.sendMessage(map[string]interface{}{
		"subject": "Question", "content": "first", "receiver_id": user2.userId,
	})
	if err != nil {
		t.Fatal(err)
	}

	replyId, err := user2.reply(rootId, "answer")
	if err != nil {
		t.Fatal(err)
	}

	reply, err := user2.getMessage(replyId)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Subject != "Re: Question" {
		t.Fatalf("unexpected reply subject '%v'", reply.Subject)
	}
	if reply.ReceiverId == nil || *reply.ReceiverId != user1.userId {
		t.Fatal("reply should go back to the original sender")
	}
	if reply.ParentId == nil || *reply.ParentId != rootId {
		t.Fatal("reply should link to its parent")
	}
}

func TestCrossTenantMessagingRejected(t *testing.T) {
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

	if _, err := userA.sendMessage(map[string]interface{}{
		"content": "hello over there", "receiver_id": userB.userId,
	}); err == nil {
		t.Fatal("directed messages across subsites should be rejected")
	}
}
