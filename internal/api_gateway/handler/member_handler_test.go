package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/referral/placement"
	"github.com/referral-ledger/internal/referral/queries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMemberRouter(svc *MockMemberService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMemberHandler(discardLogger(), svc)

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.POST("/members", h.Join)
	router.GET("/members/:id", h.GetByID)
	router.GET("/members/:id/referrals", h.Referrals)
	router.GET("/members/:id/chain", h.Chain)
	router.GET("/members/:id/tree", h.Tree)
	return router
}

func TestMemberHandler_Join(t *testing.T) {
	parentID := "parent-1"
	placed := &placement.Placement{
		Member:   &member.Member{ID: "child-1", Username: "bob", ParentID: &parentID, Level: 1, CreatedAt: time.Now()},
		ParentID: &parentID,
		Level:    1,
		Mode:     "referral",
	}

	tests := []struct {
		name       string
		body       string
		setup      func(svc *MockMemberService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "Placed",
			body: `{"username":"bob","referral_code":"parent-1"}`,
			setup: func(svc *MockMemberService) {
				svc.On("Join", mock.Anything, placement.Request{Username: "bob", ReferralCode: "parent-1"}).Return(placed, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "MissingUsername",
			body:       `{"referral_code":"parent-1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "BadEmail",
			body:       `{"username":"bob","email":"not-an-email"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name: "UnknownReferrer",
			body: `{"username":"bob","referral_code":"ghost"}`,
			setup: func(svc *MockMemberService) {
				svc.On("Join", mock.Anything, mock.Anything).Return(nil, shared.ErrInvalidReferralCode{Code: "ghost"})
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "INVALID_REFERRAL_CODE",
		},
		{
			name: "MarketFull",
			body: `{"username":"bob"}`,
			setup: func(svc *MockMemberService) {
				svc.On("Join", mock.Anything, mock.Anything).Return(nil, shared.ErrCapacityExceeded)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "CAPACITY_EXCEEDED",
		},
		{
			name: "ParentFull",
			body: `{"username":"bob","referral_code":"parent-1"}`,
			setup: func(svc *MockMemberService) {
				svc.On("Join", mock.Anything, mock.Anything).Return(nil, shared.ErrBranchingLimitExceeded{ParentID: "parent-1", Limit: 3})
			},
			wantStatus: http.StatusConflict,
			wantCode:   "BRANCHING_LIMIT_EXCEEDED",
		},
		{
			name: "TooDeep",
			body: `{"username":"bob","referral_code":"parent-1"}`,
			setup: func(svc *MockMemberService) {
				svc.On("Join", mock.Anything, mock.Anything).Return(nil, shared.ErrDepthLimitExceeded{ParentID: "parent-1", MaxLevels: 10})
			},
			wantStatus: http.StatusConflict,
			wantCode:   "DEPTH_LIMIT_EXCEEDED",
		},
		{
			name: "TakenUsername",
			body: `{"username":"bob"}`,
			setup: func(svc *MockMemberService) {
				svc.On("Join", mock.Anything, mock.Anything).Return(nil, member.ErrDuplicateUsername{Username: "bob"})
			},
			wantStatus: http.StatusConflict,
			wantCode:   "DUPLICATE_USERNAME",
		},
		{
			name: "Contention",
			body: `{"username":"bob"}`,
			setup: func(svc *MockMemberService) {
				svc.On("Join", mock.Anything, mock.Anything).Return(nil, shared.ErrStoreBusy)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "STORE_BUSY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockMemberService)
			if tt.setup != nil {
				tt.setup(svc)
			}

			req := httptest.NewRequest(http.MethodPost, "/members", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			newMemberRouter(svc).ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())

			var resp envelope[*placement.Placement]
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.CorrelationID)
			if tt.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
			} else {
				require.NotNil(t, resp.Data)
				assert.Equal(t, "child-1", resp.Data.Member.ID)
				assert.Equal(t, 1, resp.Data.Level)
				assert.Equal(t, "referral", resp.Data.Mode)
			}
			svc.AssertExpectations(t)
		})
	}

	t.Run("StoreBusySetsRetryAfter", func(t *testing.T) {
		svc := new(MockMemberService)
		svc.On("Join", mock.Anything, mock.Anything).Return(nil, shared.ErrStoreBusy)

		req := httptest.NewRequest(http.MethodPost, "/members", strings.NewReader(`{"username":"bob"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, req)

		assert.Equal(t, RetryAfterSeconds, rr.Header().Get("Retry-After"))
	})
}

func TestMemberHandler_Reads(t *testing.T) {
	t.Run("GetByID", func(t *testing.T) {
		svc := new(MockMemberService)
		svc.On("GetMember", mock.Anything, "m1").Return(&member.Member{ID: "m1", Username: "alice"}, nil)

		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/m1", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp envelope[member.Member]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.Data.Username)
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		svc := new(MockMemberService)
		svc.On("GetMember", mock.Anything, "ghost").Return(nil, member.ErrMemberNotFound{MemberID: "ghost"})

		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/ghost", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Referrals", func(t *testing.T) {
		svc := new(MockMemberService)
		svc.On("DirectReferrals", mock.Anything, "m1").Return([]*member.Member{{ID: "c2"}, {ID: "c1"}}, nil)

		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/m1/referrals", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp envelope[[]member.Member]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "c2", resp.Data[0].ID)
	})

	t.Run("ChainWithLevels", func(t *testing.T) {
		svc := new(MockMemberService)
		svc.On("ParentChain", mock.Anything, "m3", 2).Return([]string{"m2", "m1"}, nil)

		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/m3/chain?levels=2", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp envelope[ChainResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "m3", resp.Data.MemberID)
		assert.Equal(t, []string{"m2", "m1"}, resp.Data.Ancestors)
	})

	t.Run("ChainDefaultsToConfiguredLevels", func(t *testing.T) {
		svc := new(MockMemberService)
		svc.On("ParentChain", mock.Anything, "m3", 0).Return([]string{}, nil)

		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/m3/chain", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("ChainBadLevels", func(t *testing.T) {
		svc := new(MockMemberService)

		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/m3/chain?levels=abc", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "ParentChain", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Tree", func(t *testing.T) {
		svc := new(MockMemberService)
		tree := &queries.TreeNode{ID: "m1", Username: "alice", Children: []*queries.TreeNode{{ID: "m2", Username: "bob", Level: 1}}}
		svc.On("ReferralTree", mock.Anything, "m1", 1).Return(tree, nil)

		rr := httptest.NewRecorder()
		newMemberRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/m1/tree?depth=1", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp envelope[queries.TreeNode]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Data.Children, 1)
		assert.Equal(t, "bob", resp.Data.Children[0].Username)
	})
}
