package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// SequenceModel maps a Lookback×InputSize window of normalized features to Horizon
// normalized level predictions. Implementations must be safe for concurrent use.
type SequenceModel interface {
	Predict(window *mat.Dense) ([]float64, error)
	Lookback() int
	Horizon() int
	InputSize() int
}

// LayerWeights are the parameters of one LSTM layer in input, forget, cell, output gate order.
type LayerWeights struct {
	WeightIH [][]float64 `json:"weight_ih"`
	WeightHH [][]float64 `json:"weight_hh"`
	BiasIH   []float64   `json:"bias_ih"`
	BiasHH   []float64   `json:"bias_hh"`
}

// HeadWeights are the parameters of the linear output layer.
type HeadWeights struct {
	Weight [][]float64 `json:"weight"`
	Bias   []float64   `json:"bias"`
}

// ModelWeights is the JSON weight artifact exported from the trained network.
type ModelWeights struct {
	Version       string         `json:"version"`
	Lookback      int            `json:"lookback"`
	Horizon       int            `json:"horizon"`
	InputSize     int            `json:"input_size"`
	HiddenSize    int            `json:"hidden_size"`
	SigmaForecast float64        `json:"sigma_forecast"`
	Features      []string       `json:"features"`
	Layers        []LayerWeights `json:"layers"`
	Head          HeadWeights    `json:"head"`
}

type lstmLayer struct {
	wih  *mat.Dense    // 4H×in
	whh  *mat.Dense    // 4H×H
	bias *mat.VecDense // bias_ih + bias_hh
}

// LSTM is a stacked LSTM encoder with a linear head over the last hidden state.
type LSTM struct {
	version  string
	lookback int
	horizon  int
	input    int
	hidden   int
	sigma    float64
	layers   []lstmLayer
	head     *mat.Dense
	headBias *mat.VecDense
}

// LoadModel reads a JSON weight artifact and builds the network.
func LoadModel(path string) (*LSTM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var w ModelWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return NewLSTM(w)
}

// NewLSTM validates the weight shapes and builds the network.
func NewLSTM(w ModelWeights) (*LSTM, error) {
	if w.Lookback < 1 || w.Horizon < 1 || w.InputSize < 1 || w.HiddenSize < 1 {
		return nil, fmt.Errorf("model dimensions must be positive: lookback=%d horizon=%d input=%d hidden=%d",
			w.Lookback, w.Horizon, w.InputSize, w.HiddenSize)
	}
	if len(w.Layers) == 0 {
		return nil, errors.New("model has no layers")
	}

	h := w.HiddenSize
	m := &LSTM{
		version:  w.Version,
		lookback: w.Lookback,
		horizon:  w.Horizon,
		input:    w.InputSize,
		hidden:   h,
		sigma:    w.SigmaForecast,
	}

	in := w.InputSize
	for i, lw := range w.Layers {
		wih, err := denseFrom(lw.WeightIH, 4*h, in)
		if err != nil {
			return nil, fmt.Errorf("layer %d weight_ih: %w", i, err)
		}
		whh, err := denseFrom(lw.WeightHH, 4*h, h)
		if err != nil {
			return nil, fmt.Errorf("layer %d weight_hh: %w", i, err)
		}
		if len(lw.BiasIH) != 4*h || len(lw.BiasHH) != 4*h {
			return nil, fmt.Errorf("layer %d: biases must have %d entries", i, 4*h)
		}
		bias := mat.NewVecDense(4*h, append([]float64(nil), lw.BiasIH...))
		bias.AddVec(bias, mat.NewVecDense(4*h, append([]float64(nil), lw.BiasHH...)))
		m.layers = append(m.layers, lstmLayer{wih: wih, whh: whh, bias: bias})
		in = h
	}

	head, err := denseFrom(w.Head.Weight, w.Horizon, h)
	if err != nil {
		return nil, fmt.Errorf("head weight: %w", err)
	}
	if len(w.Head.Bias) != w.Horizon {
		return nil, fmt.Errorf("head bias: want %d entries, got %d", w.Horizon, len(w.Head.Bias))
	}
	m.head = head
	m.headBias = mat.NewVecDense(w.Horizon, append([]float64(nil), w.Head.Bias...))
	return m, nil
}

func denseFrom(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("want %d rows, got %d", r, len(rows))
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d: want %d columns, got %d", i, c, len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

func (m *LSTM) Lookback() int  { return m.lookback }
func (m *LSTM) Horizon() int   { return m.horizon }
func (m *LSTM) InputSize() int { return m.input }

// Version returns the artifact version string.
func (m *LSTM) Version() string { return m.version }

// NoiseSigma returns the forecast noise level the model was trained with.
func (m *LSTM) NoiseSigma() float64 { return m.sigma }

// Predict runs the window through every layer and returns the head output for the
// final time step.
func (m *LSTM) Predict(window *mat.Dense) ([]float64, error) {
	rows, cols := window.Dims()
	if rows != m.lookback || cols != m.input {
		return nil, fmt.Errorf("predict: window is %dx%d, model expects %dx%d", rows, cols, m.lookback, m.input)
	}

	n := m.hidden
	hs := make([]*mat.VecDense, len(m.layers))
	cs := make([]*mat.VecDense, len(m.layers))
	for l := range m.layers {
		hs[l] = mat.NewVecDense(n, nil)
		cs[l] = mat.NewVecDense(n, nil)
	}
	gates := mat.NewVecDense(4*n, nil)
	rec := mat.NewVecDense(4*n, nil)

	for t := 0; t < rows; t++ {
		x := mat.NewVecDense(cols, window.RawRowView(t))
		for l, layer := range m.layers {
			gates.MulVec(layer.wih, x)
			rec.MulVec(layer.whh, hs[l])
			gates.AddVec(gates, rec)
			gates.AddVec(gates, layer.bias)

			h, c := hs[l], cs[l]
			for j := 0; j < n; j++ {
				ig := sigmoid(gates.AtVec(j))
				fg := sigmoid(gates.AtVec(n + j))
				gg := math.Tanh(gates.AtVec(2*n + j))
				og := sigmoid(gates.AtVec(3*n + j))
				cj := fg*c.AtVec(j) + ig*gg
				c.SetVec(j, cj)
				h.SetVec(j, og*math.Tanh(cj))
			}
			x = h
		}
	}

	out := mat.NewVecDense(m.horizon, nil)
	out.MulVec(m.head, hs[len(hs)-1])
	out.AddVec(out, m.headBias)
	return append([]float64(nil), out.RawVector().Data...), nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
