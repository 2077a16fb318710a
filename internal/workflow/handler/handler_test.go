package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"custodian/internal/audit"
	auditmemory "custodian/internal/audit/store/memory"
	"custodian/internal/workflow/handler"
	"custodian/internal/workflow/service"
	workflowmemory "custodian/internal/workflow/store/memory"
	id "custodian/pkg/domain"
	"custodian/pkg/testutil"
)

type WorkflowHandlerSuite struct {
	suite.Suite

	router chi.Router
	userID id.UserID
}

func TestWorkflowHandlerSuite(t *testing.T) {
	suite.Run(t, new(WorkflowHandlerSuite))
}

func (s *WorkflowHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := workflowmemory.New()
	svc, err := service.New(store, service.NewMemoryTx(store), audit.NewService(auditmemory.New()),
		service.WithLogger(logger),
	)
	require.NoError(s.T(), err)

	s.router = chi.NewRouter()
	handler.New(svc, logger).Register(s.router)
	s.userID = id.NewUserID()
}

func (s *WorkflowHandlerSuite) createBody() map[string]any {
	return map[string]any{
		"asset_id":          id.NewAssetID().String(),
		"asset_external_id": "file-ext-1",
		"action_type":       "delete",
		"reason":            "stale export shared org-wide",
		"approver_emails":   []string{"alice@x.com", "bob@x.com"},
		"params":            map[string]any{},
	}
}

func (s *WorkflowHandlerSuite) authed(req *http.Request) *http.Request {
	return testutil.WithActor(req, s.userID.String(), "owner@x.com")
}

// createAction posts a valid action and returns its response body.
func (s *WorkflowHandlerSuite) createAction() *handler.CreateActionResponse {
	req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/actions", s.createBody()))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[handler.CreateActionResponse](s.T(), rr)
}

func (s *WorkflowHandlerSuite) TestCreate_Success() {
	resp := s.createAction()
	s.NotEqual(id.ActionID{}, resp.ActionID)
	s.Len(resp.ApprovalIDs, 2)
}

func (s *WorkflowHandlerSuite) TestCreate_RequiresAuth() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/actions", s.createBody())
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *WorkflowHandlerSuite) TestCreate_BadRequests() {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"malformed asset id", func(b map[string]any) { b["asset_id"] = "not-a-uuid" }},
		{"unknown action type", func(b map[string]any) { b["action_type"] = "rename" }},
		{"missing reason", func(b map[string]any) { b["reason"] = "" }},
		{"no approvers", func(b map[string]any) { b["approver_emails"] = []string{} }},
		{"visibility params missing target", func(b map[string]any) {
			b["action_type"] = "change_visibility"
			b["params"] = map[string]any{}
		}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			body := s.createBody()
			tt.mutate(body)
			req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/actions", body))
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		})
	}
}

func (s *WorkflowHandlerSuite) TestCreate_RejectsMalformedJSON() {
	req := s.authed(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/actions", "{not json"))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *WorkflowHandlerSuite) TestDecide_ApproveThenStatusReflectsIt() {
	created := s.createAction()

	decideReq := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/approvals/"+created.ApprovalIDs[0].String()+"/decide",
		map[string]any{"decision": "approved", "comment": "fine by me"}))
	decideReq = testutil.WithActor(decideReq, id.NewUserID().String(), "alice@x.com")

	rr := testutil.DoRequest(s.router, decideReq)
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[handler.DecideResponse](s.T(), rr)
	s.Equal("pending", resp.ActionStatus.String())

	statusReq := s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/actions/"+created.ActionID.String()))
	rr = testutil.DoRequest(s.router, statusReq)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "pending")
}

func (s *WorkflowHandlerSuite) TestDecide_WrongApproverForbidden() {
	created := s.createAction()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/approvals/"+created.ApprovalIDs[0].String()+"/decide",
		map[string]any{"decision": "approved"})
	req = testutil.WithActor(req, id.NewUserID().String(), "mallory@x.com")

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *WorkflowHandlerSuite) TestDecide_DuplicateBallotConflicts() {
	created := s.createAction()
	path := "/approvals/" + created.ApprovalIDs[0].String() + "/decide"

	first := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "approved"})
	first = testutil.WithActor(first, id.NewUserID().String(), "alice@x.com")
	testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, first))

	second := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "rejected"})
	second = testutil.WithActor(second, id.NewUserID().String(), "alice@x.com")
	rr := testutil.DoRequest(s.router, second)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
}

func (s *WorkflowHandlerSuite) TestDecide_RejectsPendingAsDecision() {
	created := s.createAction()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/approvals/"+created.ApprovalIDs[0].String()+"/decide",
		map[string]any{"decision": "pending"})
	req = testutil.WithActor(req, id.NewUserID().String(), "alice@x.com")

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *WorkflowHandlerSuite) TestDecide_MalformedApprovalID() {
	req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/approvals/garbage/decide", map[string]any{"decision": "approved"}))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *WorkflowHandlerSuite) TestGetStatus_UnknownAction() {
	req := s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/actions/"+id.NewActionID().String()))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *WorkflowHandlerSuite) TestGetStatus_IncludesApprovalBreakdown() {
	created := s.createAction()

	req := s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/actions/"+created.ActionID.String()))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	var body struct {
		Approvals []struct {
			ApproverEmail string `json:"approver_email"`
			Decision      string `json:"decision"`
		} `json:"approvals"`
	}
	require.NoError(s.T(), json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(s.T(), body.Approvals, 2)
	assert.Equal(s.T(), "pending", body.Approvals[0].Decision)
}
