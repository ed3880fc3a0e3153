// Command saxsengine computes a SAXS scattering profile for a pre-parsed
// molecule, following cmd/lidar's flag-based CLI shape: flags select the
// config file, the molecule input, and whether to print the result or serve
// it over scatterapi for an external fitter.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/openstructure/saxsengine/internal/config"
	"github.com/openstructure/saxsengine/internal/engine"
	"github.com/openstructure/saxsengine/internal/molecule"
	"github.com/openstructure/saxsengine/internal/sinctable"
	"github.com/openstructure/saxsengine/internal/storage"
	"github.com/openstructure/saxsengine/internal/version"
	"github.com/openstructure/saxsengine/pkg/scatterapi"
)

var (
	printVersion = flag.Bool("version", false, "Print the build version and exit")
	configFile   = flag.String("config", "", "Path to an EngineSettings JSON file (defaults used when omitted)")
	moleculeFile = flag.String("molecule", "", "Path to a pre-parsed molecule JSON file")
	fixture      = flag.String("fixture", "", "Use a built-in self-test molecule instead of -molecule (\"unit-cube\" or \"cube-center\")")
	variant      = flag.String("variant", "", "Override histogram_variant from the config file")
	serve        = flag.Bool("serve", false, "Serve the profile over scatterapi instead of printing it once")
	listenAddr   = flag.String("listen", "localhost:50151", "scatterapi listen address, used with -serve")
	dbFile       = flag.String("db", "", "Optional sqlite checkpoint database path")
	checkpointID = flag.String("checkpoint", "", "If set with -db, restore this checkpoint before computing")
	sessionID    = flag.String("session", "", "Checkpoint session id; a random one is generated when omitted")
)

func loadMolecule(path string) (*molecule.Molecule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("saxsengine: read molecule file: %w", err)
	}
	var m molecule.Molecule
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("saxsengine: parse molecule JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("saxsengine: invalid molecule: %w", err)
	}
	return &m, nil
}

func loadSettings() (config.EngineSettings, error) {
	var raw *config.RawSettings
	if *configFile != "" {
		r, err := config.LoadFile(*configFile)
		if err != nil {
			return config.EngineSettings{}, err
		}
		raw = r
	}
	settings := config.Resolve(raw)
	if *variant != "" {
		settings.HistogramVariant = config.HistogramVariant(*variant)
	}
	if err := settings.Validate(); err != nil {
		return config.EngineSettings{}, err
	}
	return settings, nil
}

// profileSource adapts a PartialManager + the Debye transform inputs into a
// scatterapi.ProfileSource, recomputing the profile fresh for each request
// since each request may carry a different free parameter set.
type profileSource struct {
	manager *engine.PartialManager
	qAxis   []float64
	sinc    *sinctable.Table
	ff      engine.FormFactorTable
	exv     func(q float64) float64
}

func (s *profileSource) Profile(params scatterapi.FitterParams) ([]scatterapi.ScatteringPoint, error) {
	composite, err := s.manager.Calculate()
	if err != nil {
		return nil, fmt.Errorf("saxsengine: recompute composite: %w", err)
	}
	profile := engine.Transform(composite, s.qAxis, s.sinc, s.ff, s.exv, engine.FreeParams{
		Cw: params.Cw, Cx: params.Cx, Cs: params.Cs, Ba: params.Ba, Bx: params.Bx,
	})
	points := make([]scatterapi.ScatteringPoint, len(profile.Q))
	for i := range profile.Q {
		points[i] = scatterapi.ScatteringPoint{Q: profile.Q[i], Intensity: profile.I[i]}
	}
	return points, nil
}

func main() {
	flag.Parse()

	if *printVersion {
		fmt.Println(version.String())
		return
	}

	if *moleculeFile == "" && *fixture == "" {
		log.Fatal("saxsengine: one of -molecule or -fixture is required")
	}

	settings, err := loadSettings()
	if err != nil {
		log.Fatalf("saxsengine: %v", err)
	}

	var m *molecule.Molecule
	if *moleculeFile != "" {
		m, err = loadMolecule(*moleculeFile)
	} else {
		m, err = loadFixture(*fixture)
	}
	if err != nil {
		log.Fatalf("saxsengine: %v", err)
	}

	manager := engine.NewPartialManager(settings, m)

	if *sessionID == "" {
		*sessionID = uuid.New().String()
	}

	var store *storage.Store
	if *dbFile != "" {
		store, err = storage.Open(*dbFile)
		if err != nil {
			log.Fatalf("saxsengine: open checkpoint db: %v", err)
		}
		defer store.Close()
		log.Printf("saxsengine: session %s", *sessionID)

		if *checkpointID != "" {
			var id int64
			if _, err := fmt.Sscanf(*checkpointID, "%d", &id); err != nil {
				log.Fatalf("saxsengine: invalid -checkpoint id %q: %v", *checkpointID, err)
			}
			if err := manager.Restore(store, id); err != nil {
				log.Fatalf("saxsengine: restore checkpoint %d: %v", id, err)
			}
			log.Printf("saxsengine: restored checkpoint %d", id)
		}
	}

	qAxis := sinctable.LogSpace(settings.QMin, settings.QMax, settings.QPoints)
	sinc := sinctable.Build(qAxis, settings.BinWidthAngstrom, settings.NBins())
	ff := engine.DefaultGaussianFormFactors(molecule.NumAtomicForms)
	exv := engine.ExcludedVolumeFormFactor(settings.VoxelWidthAngstrom)

	if *serve {
		source := &profileSource{manager: manager, qAxis: qAxis, sinc: sinc, ff: ff, exv: exv}
		pub := scatterapi.NewPublisher(scatterapi.Config{ListenAddr: *listenAddr, MaxClients: 5}, source)
		if err := pub.Start(); err != nil {
			log.Fatalf("saxsengine: start scatterapi: %v", err)
		}
		log.Printf("saxsengine: serving on %s", *listenAddr)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		pub.Stop()

		if store != nil {
			id, err := manager.Checkpoint(store, *sessionID, "shutdown")
			if err != nil {
				log.Printf("saxsengine: checkpoint on shutdown failed: %v", err)
			} else {
				log.Printf("saxsengine: checkpointed as %d", id)
			}
		}
		return
	}

	composite, err := manager.Calculate()
	if err != nil {
		log.Fatalf("saxsengine: calculate: %v", err)
	}
	profile := engine.Transform(composite, qAxis, sinc, ff, exv, engine.DefaultFreeParams())

	if store != nil {
		if _, err := manager.Checkpoint(store, *sessionID, "single-shot"); err != nil {
			log.Printf("saxsengine: checkpoint failed: %v", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(profile); err != nil {
		log.Fatalf("saxsengine: encode profile: %v", err)
	}
}
