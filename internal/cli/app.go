package cli

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/config"
	"github.com/digkill/designforge/internal/database"
	"github.com/digkill/designforge/internal/events"
	"github.com/digkill/designforge/internal/imagegen"
	"github.com/digkill/designforge/internal/kie"
	"github.com/digkill/designforge/internal/repository"
	"github.com/digkill/designforge/internal/service"
	"github.com/digkill/designforge/internal/storage"
)

// app holds the opened database and every service built on it.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	db        *sqlx.DB
	store     *repository.Store
	publisher events.Publisher
	uploader  service.Uploader

	users       *service.UserService
	ledger      *service.Ledger
	generations *service.GenerationService
	variations  *service.VariationService
	mockups     *service.MockupService
	products    *service.ProductService
	orders      *service.OrderService
	promos      *service.PromoService
}

func newApp(cfg config.Config, log *slog.Logger) (*app, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connect: %w", err)
	}

	// A nil *storage.Uploader must not leak into the interface.
	var uploader service.Uploader
	if scfg, ok := storage.FromConfig(cfg); ok {
		u, err := storage.NewUploader(scfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("storage uploader: %w", err)
		}
		uploader = u
	}

	store := repository.NewStore(db)
	publisher := events.Connect(cfg.RabbitMQURL, cfg.EventsExchange, log)
	ledger := service.NewLedger(store, log, cfg.DefaultPlanCredits)
	transformer := imagegen.NewURLTransformer()

	return &app{
		cfg:         cfg,
		log:         log,
		db:          db,
		store:       store,
		publisher:   publisher,
		uploader:    uploader,
		users:       service.NewUserService(store),
		ledger:      ledger,
		generations: service.NewGenerationService(store, ledger, synthesizer(cfg, log), publisher, log),
		variations: service.NewVariationService(store, ledger, transformer, publisher, log, service.ProductDefaults{
			Price:    cfg.ProductPrice(),
			Currency: cfg.ProductCurrency,
		}),
		mockups:  service.NewMockupService(store, uploader, publisher, log),
		products: service.NewProductService(store, publisher, log),
		orders:   service.NewOrderService(store, publisher, log),
		promos:   service.NewPromoService(store, ledger, cfg.PromoBonusCredits),
	}, nil
}

func synthesizer(cfg config.Config, log *slog.Logger) imagegen.Synthesizer {
	if cfg.ImageProvider == "kie" {
		return imagegen.NewKIE(kie.NewClient(cfg, log), cfg.KIEModel)
	}
	return imagegen.NewStub()
}

func (a *app) Close() {
	a.publisher.Close()
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", "err", err)
	}
}
