// Command backtest replays a trained model over a station's history and reports the
// forecast error of each scenario. The MAE it prints is the value stored as a station's
// historical MAE.
//
// Usage:
//
//	go run ./cmd/backtest \
//	  -model data/model.json \
//	  -scalers data/scalers.yaml \
//	  -station E001 \
//	  -csv data/E001.csv \
//	  -from 2020-01-01 -to 2023-12-31 -step 7
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/couchcryptid/reservoir-risk-service/internal/adapter/memory"
	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/forecast"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
)

type options struct {
	modelPath   string
	scalersPath string
	csvPath     string
	station     string
	from        string
	to          string
	step        int
	horizon     int
	seed        uint64
	sigma       float64
}

func main() {
	var o options
	flag.StringVar(&o.modelPath, "model", "data/model.json", "path to the model weights")
	flag.StringVar(&o.scalersPath, "scalers", "data/scalers.yaml", "path to the scaler artifact")
	flag.StringVar(&o.csvPath, "csv", "", "station series CSV (date,level,precipitation,temperature,mean_flow)")
	flag.StringVar(&o.station, "station", "", "station code")
	flag.StringVar(&o.from, "from", "", "first anchor date (YYYY-MM-DD)")
	flag.StringVar(&o.to, "to", "", "last anchor date (YYYY-MM-DD)")
	flag.IntVar(&o.step, "step", 7, "days between anchors")
	flag.IntVar(&o.horizon, "horizon", 0, "forecast horizon in days (default: model horizon)")
	flag.Uint64Var(&o.seed, "seed", 42, "noise seed")
	flag.Float64Var(&o.sigma, "sigma", forecast.DefaultNoiseSigma, "operational noise level")
	flag.Parse()

	if o.csvPath == "" || o.station == "" || o.from == "" || o.to == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(context.Background(), o, os.Stdout))
}

func run(ctx context.Context, o options, out io.Writer) int {
	from, err := domain.ParseDate(o.from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: -from: %v\n", err)
		return 1
	}
	to, err := domain.ParseDate(o.to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: -to: %v\n", err)
		return 1
	}

	model, err := forecast.LoadModel(o.modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	scalers, err := forecast.LoadScalers(o.scalersPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	f, err := os.Open(o.csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	records, err := readSeriesCSV(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", o.csvPath, err)
		return 1
	}

	store := memory.NewStore()
	store.PutSeries(o.station, records)

	horizon := o.horizon
	if horizon == 0 {
		horizon = model.Horizon()
	}
	engine := forecast.NewEngine(model, scalers, store, forecast.EngineConfig{
		NoiseSigma: o.sigma,
		Seed:       &o.seed,
	}, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())

	rep, err := backtest(ctx, engine, o.station, window{from: from, to: to, step: o.step, horizon: horizon})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "=== Backtest %s (model %s) ===\n\n", o.station, model.Version())
	fmt.Fprintf(out, "Anchors: %d run, %d skipped, horizon %d days, %d records\n\n",
		rep.anchors, rep.skipped, horizon, len(records))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tPOINTS\tMAE\tRMSE")
	for _, s := range rep.scenarios() {
		sc := rep.errs[s]
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\n", s, sc.count(), sc.mae(), sc.rmse())
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	if rep.anchors == 0 {
		fmt.Fprintln(out, "\nNo anchor in range could be forecast.")
		return 1
	}
	return 0
}
