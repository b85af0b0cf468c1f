package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	echoapi "github.com/trezcool/ujumbe/apps/api/echo"
	"github.com/trezcool/ujumbe/core/messaging"
	"github.com/trezcool/ujumbe/core/user"
	testutil "github.com/trezcool/ujumbe/tests"
)

type messagingFixture struct {
	student user.User // mentored by mentor
	mentor  user.User
	admin   user.User
	loner   user.User // student without a mentor
}

func setupMessaging(t *testing.T) messagingFixture {
	t.Helper()
	db.Reset()

	fx := messagingFixture{
		student: testutil.CreateUser(t, usrRepo, "Imani", "imani", "imani@test.cd", "", user.RoleStudent, true),
		mentor:  testutil.CreateUser(t, usrRepo, "Zuri", "zuri", "zuri@test.cd", "", user.RoleMentor, true),
		admin:   testutil.CreateUser(t, usrRepo, "Amani", "amani", "amani@test.cd", "", user.RoleAdmin, true),
		loner:   testutil.CreateUser(t, usrRepo, "Jabali", "jabali", "jabali@test.cd", "", user.RoleStudent, true),
	}
	testutil.CreateMentorship(t, usrRepo, fx.student.ID, fx.mentor.ID)
	return fx
}

func sendMessage(t *testing.T, sender user.User, nm messaging.NewMessage) (messaging.Thread, messaging.Message) {
	t.Helper()
	thr, msg, err := msgSvc.Send(context.Background(), sender, nm)
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	return thr, msg
}

func Test_messagingApi_send(t *testing.T) {
	fx := setupMessaging(t)

	thr, _ := sendMessage(t, fx.student, messaging.NewMessage{RecipientRole: "mentor", Body: "Existing thread"})

	tests := []httpTest{
		{
			name: "auth required", body: []byte(`{"recipient_role": "mentor", "message": "hi"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "empty message", body: []byte(`{"recipient_role": "mentor"}`), token: getToken(t, fx.student),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"message": "this field is required"}),
		},
		{
			name: "invalid recipient role", body: []byte(`{"recipient_role": "boss", "message": "hi"}`), token: getToken(t, fx.student),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"recipient_role": "invalid role"}),
		},
		{
			name: "no mentor assigned", body: []byte(`{"recipient_role": "mentor", "message": "anyone?"}`), token: getToken(t, fx.loner),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "no active mentor assigned"}),
		},
		{
			name: "student to student", token: getToken(t, fx.student),
			body:     []byte(`{"recipient_role": "student", "recipient_id": "` + fx.loner.ID + `", "message": "hi"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you cannot message this recipient"}),
		},
		{
			name: "reply to unknown thread", body: []byte(`{"thread_id": 999, "message": "hello?"}`), token: getToken(t, fx.student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "thread not found"}),
		},
		{
			name: "reply by non-participant", token: getToken(t, fx.loner),
			body:     marchallObj(t, messaging.NewMessage{ThreadID: thr.ID, Body: "let me in"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you are not a participant of this thread"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/messages", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("student starts an admin conversation", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/messages", getToken(t, fx.loner),
			[]byte(`{"recipient_role": "admin", "subject": "Help", "message": "Please help"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.SendMessageResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling SendMessageResponse: %v", err)
		}
		if !resp.Success {
			t.Error("success = false; want true")
		}
		if resp.Thread.StudentID != fx.loner.ID || resp.Thread.AdminID != "" {
			t.Errorf("unexpected thread slots: %+v", resp.Thread)
		}
		if resp.Thread.LastMessageSnippet != "Please help" {
			t.Errorf("thread snippet = %q; want %q", resp.Thread.LastMessageSnippet, "Please help")
		}
		if resp.Message.SenderID != fx.loner.ID || resp.Message.Body != "Please help" {
			t.Errorf("unexpected message: %+v", resp.Message)
		}
	})

	t.Run("reply lands in the same thread", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/messages", getToken(t, fx.mentor),
			marchallObj(t, messaging.NewMessage{ThreadID: thr.ID, Body: "Follow-up"}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.SendMessageResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling SendMessageResponse: %v", err)
		}
		if resp.Thread.ID != thr.ID {
			t.Errorf("thread ID = %v; want %v", resp.Thread.ID, thr.ID)
		}
		if resp.Thread.LastMessageSnippet != "Follow-up" {
			t.Errorf("thread snippet = %q; want %q", resp.Thread.LastMessageSnippet, "Follow-up")
		}
	})
}

func Test_messagingApi_list(t *testing.T) {
	fx := setupMessaging(t)

	mentorThr, _ := sendMessage(t, fx.student, messaging.NewMessage{RecipientRole: "mentor", Body: "To mentor"})
	queueThr, _ := sendMessage(t, fx.student, messaging.NewMessage{RecipientRole: "admin", Body: "To admins"})

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/messages")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("student threads, most recent first", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/messages", getToken(t, fx.student))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.ThreadListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling ThreadListResponse: %v", err)
		}
		if !resp.Success || len(resp.Threads) != 2 {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if resp.Threads[0].ID != queueThr.ID || resp.Threads[1].ID != mentorThr.ID {
			t.Errorf("thread order = [%v, %v]; want [%v, %v]",
				resp.Threads[0].ID, resp.Threads[1].ID, queueThr.ID, mentorThr.ID)
		}
	})

	t.Run("admin sees the shared queue", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/messages", getToken(t, fx.admin))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.ThreadListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling ThreadListResponse: %v", err)
		}
		if len(resp.Threads) != 1 || resp.Threads[0].ID != queueThr.ID {
			t.Errorf("admin threads = %+v; want only %v", resp.Threads, queueThr.ID)
		}
	})

	t.Run("no threads yet", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/messages", getToken(t, fx.loner))
		app.ServeHTTP(rec, req)
		wantData := marchallObj(t, echoapi.ThreadListResponse{Success: true, Threads: []messaging.Thread{}})
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: wantData}, rec)
	})

	t.Run("thread detail with messages", func(t *testing.T) {
		_, reply := sendMessage(t, fx.mentor, messaging.NewMessage{ThreadID: mentorThr.ID, Body: "Reply"})

		req, rec := newAuthRequest(http.MethodGet, "/v1/messages?threadId="+formatID(mentorThr.ID), getToken(t, fx.mentor))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.ThreadDetailResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling ThreadDetailResponse: %v", err)
		}
		if resp.Thread.ID != mentorThr.ID {
			t.Errorf("thread ID = %v; want %v", resp.Thread.ID, mentorThr.ID)
		}
		if len(resp.Messages) != 2 {
			t.Fatalf("message count = %d; want 2", len(resp.Messages))
		}
		if last := resp.Messages[len(resp.Messages)-1]; last.ID != reply.ID {
			t.Errorf("last message = %v; want %v (log in chronological order)", last.ID, reply.ID)
		}
	})

	t.Run("detail forbidden for non-participant", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/messages?threadId="+formatID(mentorThr.ID), getToken(t, fx.loner))
		app.ServeHTTP(rec, req)
		wantData := marchallObj(t, httpErr{Error: "you are not a participant of this thread"})
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: wantData}, rec)
	})

	t.Run("detail not found", func(t *testing.T) {
		wantData := marchallObj(t, httpErr{Error: "thread not found"})
		for _, raw := range []string{"999", "lol"} {
			req, rec := newAuthRequest(http.MethodGet, "/v1/messages?threadId="+raw, getToken(t, fx.student))
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: wantData}, rec)
		}
	})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
