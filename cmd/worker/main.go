package main

import (
	"context"
	"fmt"
	"log"
	"os"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/simforge/simforge/internal/config"
	"github.com/simforge/simforge/internal/formats"
	neo4jstore "github.com/simforge/simforge/internal/graphstore/neo4j"
	"github.com/simforge/simforge/internal/qualitygate"
	"github.com/simforge/simforge/internal/secrets"
	"github.com/simforge/simforge/internal/server"
	"github.com/simforge/simforge/internal/session"
	temporalmod "github.com/simforge/simforge/internal/temporal"
	"github.com/simforge/simforge/internal/vector"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	g := server.NewGracefulServer(nil, server.DefaultShutdownConfig())

	deps := &temporalmod.Dependencies{Registry: formats.Default()}

	sessions, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	deps.Sessions = sessions
	g.Health.RegisterCheck("sessions", server.SessionStoreHealthChecker(cfg.Session.Dir))

	if cfg.Store.URI != "" {
		password := secrets.GetOrDefault(ctx, string(secrets.SecretGraphPassword), cfg.Store.Password)
		graph, err := neo4jstore.New(ctx, cfg.Store.URI, cfg.Store.Username, password)
		if err != nil {
			log.Fatalf("graph store: %v", err)
		}
		deps.Graph = graph
		g.Health.RegisterCheck("graph", server.GraphStoreHealthChecker(func(ctx context.Context) error {
			_, err := graph.ListModels(ctx)
			return err
		}))
		g.AddHook(server.GraphStoreShutdownHook(graph.Close))
	}

	if cfg.Vector.Host != "" {
		repo, err := vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			log.Fatalf("vector store: %v", err)
		}
		deps.Vectors = vector.NewIndexer(repo)
		g.AddHook(server.VectorStoreShutdownHook(repo.Close))
	}

	if cfg.Gates.Enabled {
		deps.Gates = qualitygate.BuildPipeline(&cfg.Gates)
	}

	temporalmod.SetDependencies(deps)

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	g.AddHook(server.TemporalWorkerShutdownHook(w.Stop))

	healthAddr := cfg.Server.HealthAddr
	if healthAddr == "" {
		healthAddr = ":8086"
	}
	if err := g.Start(healthAddr); err != nil {
		log.Fatalf("health server: %v", err)
	}

	fmt.Printf("Worker started on task queue %s, health on %s\n", cfg.Temporal.TaskQueue, healthAddr)
	g.Wait()
	fmt.Println("Worker stopped")
}
