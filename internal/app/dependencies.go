package app

import (
	"database/sql"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/config"
	"github.com/RitoIssei/bot-mng-ns/internal/event_bus"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/RitoIssei/bot-mng-ns/pkg/access"
	"github.com/RitoIssei/bot-mng-ns/pkg/aggregation"
	"github.com/RitoIssei/bot-mng-ns/pkg/budget_request"
	"github.com/RitoIssei/bot-mng-ns/pkg/confirmation"
	"github.com/RitoIssei/bot-mng-ns/pkg/ledger"
	"github.com/RitoIssei/bot-mng-ns/pkg/normalizer"
	"github.com/RitoIssei/bot-mng-ns/pkg/replication"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus

	LedgerRepo    ledger.Repository
	LedgerService *ledger.ServiceImpl
	LedgerHandler *ledger.Handler

	ThresholdRepo      aggregation.ThresholdRepository
	Engine             *aggregation.Engine
	AggregationHandler *aggregation.Handler

	MemberRepo    access.MemberRepository
	Authorizer    *access.Authorizer
	AccessHandler *access.Handler

	StagingRepo confirmation.Repository
	Sweeper     *confirmation.Sweeper

	BudgetRequestService *budget_request.ServiceImpl
	BudgetRequestHandler *budget_request.Handler

	Sink *replication.Sink
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, staging *sql.DB, cfg config.Application) (*Dependencies, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{}
	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()

	deps.Sink = replication.NewSink(cfg.Replication)
	deps.Sink.Subscribe(deps.EventBus)

	deps.LedgerRepo = ledger.NewRepository(db)
	deps.LedgerService = ledger.NewLedgerService(deps.LedgerRepo, deps.EventBus, deps.Clock, cfg.Area)
	deps.LedgerHandler = ledger.NewHandler(deps.LedgerService)

	deps.ThresholdRepo = aggregation.NewThresholdRepository(db)
	deps.Engine = aggregation.NewEngine(deps.LedgerService, deps.ThresholdRepo, aggregation.NewCalendar(loc), deps.Clock, cfg.Area)
	deps.AggregationHandler = aggregation.NewHandler(deps.Engine)

	deps.MemberRepo = access.NewMemberRepository(db)
	deps.Authorizer = access.NewAuthorizer(access.RepositoryLoaders(deps.MemberRepo), cfg.Admins, cfg.Area, cfg.Access.TTL, deps.Clock)
	deps.AccessHandler = access.NewHandler(deps.MemberRepo, deps.Authorizer)

	deps.StagingRepo = confirmation.NewSQLiteRepository(staging)
	deps.Sweeper = confirmation.NewSweeper(deps.StagingRepo, deps.Clock, cfg.Staging.MaxAge, cfg.Staging.SweepInterval)

	deps.BudgetRequestService = budget_request.NewService(
		deps.LedgerService,
		deps.Engine,
		normalizer.New(cfg.Contract),
		deps.Authorizer,
		deps.StagingRepo,
		deps.EventBus,
		deps.Clock,
		cfg.Area,
	)
	deps.BudgetRequestHandler = budget_request.NewHandler(deps.BudgetRequestService)

	return deps, nil
}
