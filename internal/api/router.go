package api

import (
	"net/http"

	"github.com/btcsuite/btclog"
	"github.com/gin-gonic/gin"

	"github.com/thanhnp/family-currency/internal/api/handlers"
	"github.com/thanhnp/family-currency/internal/api/middleware"
	"github.com/thanhnp/family-currency/internal/storage"
)

// UseLogger sets the logger used by the handlers and request logging.
func UseLogger(logger btclog.Logger) {
	middleware.UseLogger(logger)
	handlers.UseLogger(logger)
}

// Deps are the components served by the router. Miner, Stores, Syncer and
// Metrics are optional.
type Deps struct {
	Ledger  handlers.Ledger
	Wallets handlers.Wallets
	Network handlers.Network
	Miner   handlers.MinerStats
	Stores  *storage.Stores
	Syncer  handlers.IndexStatus
	Metrics http.Handler
}

// Router wraps the Gin router with handlers
type Router struct {
	engine          *gin.Engine
	userHandler     *handlers.UserHandler
	tokenHandler    *handlers.TokenHandler
	chainHandler    *handlers.ChainHandler
	miningHandler   *handlers.MiningHandler
	networkHandler  *handlers.NetworkHandler
	explorerHandler *handlers.ExplorerHandler
	metrics         http.Handler
}

// NewRouter creates a new Router with all handlers
func NewRouter(deps Deps) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		engine:         gin.New(),
		userHandler:    handlers.NewUserHandler(deps.Ledger, deps.Wallets),
		tokenHandler:   handlers.NewTokenHandler(deps.Ledger, deps.Wallets, deps.Network),
		chainHandler:   handlers.NewChainHandler(deps.Ledger),
		miningHandler:  handlers.NewMiningHandler(deps.Ledger, deps.Network, deps.Miner),
		networkHandler: handlers.NewNetworkHandler(deps.Network),
		metrics:        deps.Metrics,
	}
	if deps.Stores != nil {
		r.explorerHandler = handlers.NewExplorerHandler(deps.Stores, deps.Syncer)
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// setupMiddleware configures middleware
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.CORS())
}

// setupRoutes configures API routes
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if r.metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.metrics))
	}

	api := r.engine.Group("/api")
	{
		users := api.Group("/users")
		{
			users.POST("", r.userHandler.Create)
			users.GET("/:address", r.userHandler.Get)
		}

		tokens := api.Group("/tokens")
		{
			tokens.POST("/mint", r.tokenHandler.Mint)
			tokens.POST("/transfer", r.tokenHandler.Transfer)
			tokens.POST("/burn", r.tokenHandler.Burn)
			tokens.GET("/balance/:address", r.tokenHandler.Balance)
		}

		chain := api.Group("/blockchain")
		{
			chain.GET("/height", r.chainHandler.Height)
			chain.GET("/latest", r.chainHandler.Latest)
			chain.GET("/stats", r.chainHandler.Stats)
			chain.GET("/pending", r.chainHandler.Pending)
			chain.GET("/valid", r.chainHandler.Valid)
			chain.GET("/block/:height", r.chainHandler.GetByHeight)
			chain.GET("/transaction/:txId", r.chainHandler.GetTransaction)
		}

		mining := api.Group("/mining")
		{
			mining.POST("/mine", r.miningHandler.Mine)
			mining.GET("/info", r.miningHandler.Info)
		}

		network := api.Group("/network")
		{
			network.GET("/peers", r.networkHandler.Peers)
			network.POST("/connect", r.networkHandler.Connect)
		}

		// Explorer routes, served from the index
		if r.explorerHandler != nil {
			explorer := api.Group("/explorer")
			{
				explorer.GET("/overview", r.explorerHandler.Overview)
				explorer.GET("/blocks", r.explorerHandler.GetBlocks)
				explorer.GET("/blocks/:hash", r.explorerHandler.GetBlock)
				explorer.GET("/transactions/:txId", r.explorerHandler.GetTransaction)
				explorer.GET("/addresses/:address", r.explorerHandler.GetAddress)
			}
		}
	}
}

// Engine returns the underlying Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
