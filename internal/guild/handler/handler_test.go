package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"guildledger/internal/guild/handler/mocks"
	"guildledger/internal/guild/models"
	submission "guildledger/internal/submission/models"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/guild-mocks.go -package=mocks Service,Submitter

var (
	master = domain.MustParseAddress("0x000000000000000000000000000000000000000a")
	alice  = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	guild  = domain.MustParseAddress("0x00000000000000000000000000000000000000aa")
)

type GuildHandlerSuite struct {
	suite.Suite
	service   *mocks.MockService
	submitter *mocks.MockSubmitter
	router    chi.Router
}

func TestGuildHandlerSuite(t *testing.T) {
	suite.Run(t, new(GuildHandlerSuite))
}

func (s *GuildHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.submitter = mocks.NewMockSubmitter(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, s.submitter, logger, nil, testutil.SubjectValidator{}, time.Second).Register(s.router)
}

func (s *GuildHandlerSuite) runInline(kind submission.Kind) {
	s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any(), kind, gomock.Any()).DoAndReturn(
		func(ctx context.Context, caller domain.Address, kind submission.Kind, op func(context.Context) (any, error)) (*submission.Receipt, error) {
			r, err := submission.NewReceipt(kind, caller, time.Now())
			s.Require().NoError(err)
			result, err := op(ctx)
			if err != nil {
				r.ApplyFailure(err, time.Now())
			} else {
				s.Require().NoError(r.ApplyConfirmation(result, time.Now()))
			}
			return r, nil
		})
}

func (s *GuildHandlerSuite) do(req *http.Request, caller domain.Address) *httptest.ResponseRecorder {
	testutil.AsCaller(req, caller)
	return testutil.DoRequest(s.router, req)
}

func (s *GuildHandlerSuite) receipt(rr *httptest.ResponseRecorder) *submission.Receipt {
	s.Require().Equal(http.StatusAccepted, rr.Code)
	return testutil.UnmarshalResponse[submission.Receipt](s.T(), rr)
}

func (s *GuildHandlerSuite) TestJoinGuild() {
	s.Run("caller joins", func() {
		s.runInline(submission.KindJoinGuild)
		s.service.EXPECT().JoinGuild(gomock.Any(), guild, alice).Return(nil)

		r := s.receipt(s.do(testutil.NewRequest(s.T(), http.MethodPost, "/guilds/"+guild.String()+"/members"), alice))
		s.Equal(submission.StatusConfirmed, r.Status)
	})

	s.Run("repeat join fails on the receipt", func() {
		s.runInline(submission.KindJoinGuild)
		s.service.EXPECT().JoinGuild(gomock.Any(), guild, alice).
			Return(dErrors.New(dErrors.CodeAlreadyMember, "already a member"))

		r := s.receipt(s.do(testutil.NewRequest(s.T(), http.MethodPost, "/guilds/"+guild.String()+"/members"), alice))
		s.Equal(submission.StatusFailed, r.Status)
		s.Equal(dErrors.CodeAlreadyMember, r.Failure.Code)
	})
}

func (s *GuildHandlerSuite) TestGetMember() {
	s.service.EXPECT().IsMember(gomock.Any(), guild, alice).Return(true, nil)
	s.service.EXPECT().GetMemberReputation(gomock.Any(), guild, alice).Return(uint64(100), nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/guilds/"+guild.String()+"/members/"+alice.String()), master)
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[MemberResponse](s.T(), rr)
	s.True(resp.Joined)
	s.Equal(uint64(100), resp.Reputation)
}

func (s *GuildHandlerSuite) TestCreateTask() {
	s.Run("master creates a task", func() {
		s.runInline(submission.KindCreateTask)
		s.service.EXPECT().CreateTask(gomock.Any(), guild, master, &models.CreateTaskRequest{
			Title: "Audit", Description: "Review", RewardPoints: 100, RewardNFT: true,
		}).Return(uint64(1), nil)

		r := s.receipt(s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/guilds/"+guild.String()+"/tasks",
			models.CreateTaskRequest{Title: "Audit", Description: "Review", RewardPoints: 100, RewardNFT: true}), master))
		s.Equal(submission.StatusConfirmed, r.Status)
		s.JSONEq(`{"guild":"`+guild.String()+`","task_id":1}`, string(r.Result))
	})

	s.Run("negative reward is rejected before submission", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/guilds/"+guild.String()+"/tasks",
			models.CreateTaskRequest{Title: "Audit", Description: "Review", RewardPoints: -1}), master)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	s.Run("unknown fields are rejected", func() {
		rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/guilds/"+guild.String()+"/tasks",
			`{"title":"a","description":"b","creator":"0x01"}`), master)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func (s *GuildHandlerSuite) TestTasks() {
	task := &models.Task{Guild: guild, ID: 1, Title: "Audit", RewardPoints: 100}

	s.Run("list", func() {
		s.service.EXPECT().ListTasks(gomock.Any(), guild).Return([]*models.Task{task}, nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/guilds/"+guild.String()+"/tasks"), alice)
		resp := testutil.UnmarshalResponse[TaskListResponse](s.T(), rr)
		s.Equal(1, resp.Total)
	})

	s.Run("get", func() {
		s.service.EXPECT().GetTask(gomock.Any(), guild, uint64(1)).Return(task, nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/guilds/"+guild.String()+"/tasks/1"), alice)
		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("task zero is not found", func() {
		s.service.EXPECT().GetTask(gomock.Any(), guild, uint64(0)).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "task not found"))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/guilds/"+guild.String()+"/tasks/0"), alice)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("non-numeric task id is rejected", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/guilds/"+guild.String()+"/tasks/abc"), alice)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *GuildHandlerSuite) TestCompleteTask() {
	s.Run("completion carries the badge token", func() {
		token := uint64(7)
		s.runInline(submission.KindCompleteTask)
		s.service.EXPECT().CompleteTask(gomock.Any(), guild, alice, uint64(1)).Return(&models.Completion{
			Guild: guild, TaskID: 1, Member: alice, Reputation: 100, BadgeToken: &token,
		}, nil)

		r := s.receipt(s.do(testutil.NewRequest(s.T(), http.MethodPost, "/guilds/"+guild.String()+"/tasks/1/complete"), alice))
		s.Equal(submission.StatusConfirmed, r.Status)
		s.Contains(string(r.Result), `"badge_token_id":7`)
	})

	s.Run("revoked guild", func() {
		s.runInline(submission.KindCompleteTask)
		s.service.EXPECT().CompleteTask(gomock.Any(), guild, alice, uint64(2)).
			Return(nil, dErrors.New(dErrors.CodePermissionRevoked, "mint permission revoked"))

		r := s.receipt(s.do(testutil.NewRequest(s.T(), http.MethodPost, "/guilds/"+guild.String()+"/tasks/2/complete"), alice))
		s.Equal(submission.StatusFailed, r.Status)
		s.Equal(dErrors.CodePermissionRevoked, r.Failure.Code)
	})
}
