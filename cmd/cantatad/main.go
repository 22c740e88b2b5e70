// Command cantatad starts a contract-ledger node: it hosts the contract
// family, applies the interaction feed in order, and serves JSON-RPC.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cantata-io/cantata/config"
	"github.com/cantata-io/cantata/engine"
	"github.com/cantata-io/cantata/events"
	"github.com/cantata-io/cantata/feed"
	"github.com/cantata-io/cantata/indexer"
	"github.com/cantata-io/cantata/rpc"
	"github.com/cantata-io/cantata/storage"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	verify := flag.Bool("verify", false, "replay the full interaction log against genesis and compare state, then continue")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/ledger")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	store := storage.NewStore(db)

	// ---- events ----
	emitter := events.NewEmitter()

	// ---- indexer ----
	idx := indexer.New(db, emitter)

	// ---- engine ----
	eng := engine.New(store, emitter)
	contracts, err := config.BuildContracts(cfg)
	if err != nil {
		log.Fatalf("genesis: %v", err)
	}
	for _, c := range contracts {
		eng.Register(c)
	}
	if *verify {
		if err := eng.Replay(store); err != nil {
			log.Fatalf("replay: %v", err)
		}
		root, err := eng.StateRoot()
		if err != nil {
			log.Fatalf("state root: %v", err)
		}
		log.Printf("Replay verified, state root %s", root)
	} else if err := eng.Load(); err != nil {
		log.Fatalf("engine load: %v", err)
	}
	log.Printf("Engine at height %d with %d contracts", eng.Height(), len(contracts))

	// ---- feed queue ----
	queue := feed.NewQueue()

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(eng, queue, store, idx)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.AuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.AuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// ---- apply loop ----
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		applyLoop(eng, queue, batchSize, done)
	}()
	log.Println("Apply loop running")

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// Stop applying first so nothing is written while RPC drains.
	close(done)
	wg.Wait()
	log.Println("Shutdown complete.")
}

// applyLoop drains the queue into the engine. The drain order is the total
// order: whatever sequence interactions leave the queue in is the sequence
// the log records.
func applyLoop(eng *engine.Engine, queue *feed.Queue, batchSize int, done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			pending := queue.Pending(batchSize)
			if len(pending) == 0 {
				continue
			}
			applied := make([]string, 0, len(pending))
			for _, in := range pending {
				receipt, err := eng.Apply(in)
				if err != nil {
					log.Printf("[node] apply %s: %v", in.ID, err)
					return
				}
				if !receipt.OK {
					log.Printf("[node] interaction %s rejected: %s", in.ID, receipt.Err.Kind)
				}
				applied = append(applied, in.ID)
			}
			queue.Remove(applied)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
