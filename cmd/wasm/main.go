//go:build js && wasm

package main

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/palette"
	"github.com/MeKo-Tech/noisefield/internal/render"
)

// ParamsRequest carries noise parameters from JS. Zero fields take defaults.
type ParamsRequest struct {
	Type        string  `json:"type"`
	Octaves     int     `json:"octaves"`
	Frequency   float64 `json:"frequency"`
	Lacunarity  float64 `json:"lacunarity"`
	Persistence float64 `json:"persistence"`
	Gain        float64 `json:"gain"`
	Legacy      bool    `json:"legacy"`
}

// SliceRequest asks for a size x size slice at depth Z starting at (X, Y).
type SliceRequest struct {
	Params ParamsRequest `json:"params"`
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
	Z      float64       `json:"z"`
	Size   int           `json:"size"`
	Ramp   string        `json:"ramp"`
}

func (r ParamsRequest) params() (noise.Params, error) {
	p := noise.DefaultParams()
	if r.Type != "" {
		kind, err := noise.ParseKind(r.Type)
		if err != nil {
			return p, err
		}
		p.Kind = kind
	}
	if r.Octaves != 0 {
		p.Octaves = r.Octaves
	}
	if r.Frequency != 0 {
		p.Frequency = r.Frequency
	}
	if r.Lacunarity != 0 {
		p.Lacunarity = r.Lacunarity
	}
	if r.Persistence != 0 {
		p.Persistence = r.Persistence
	}
	if r.Gain != 0 {
		p.Gain = r.Gain
	}
	p.Legacy = r.Legacy
	return p, p.Validate()
}

func errorResult(err error) any {
	return map[string]any{"error": err.Error()}
}

// renderSlice returns {width, height, pixels} where pixels is a
// Uint8ClampedArray ready for ImageData.
func renderSlice(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorResult(fmt.Errorf("missing arguments"))
	}
	var req SliceRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return errorResult(fmt.Errorf("failed to parse request: %w", err))
	}
	p, err := req.Params.params()
	if err != nil {
		return errorResult(err)
	}
	if req.Ramp == "" {
		req.Ramp = "gray"
	}
	ramp, err := palette.Lookup(req.Ramp)
	if err != nil {
		return errorResult(err)
	}

	field := noise.MustNew(p)
	values, err := field.IntensityGrid3(req.X, req.Y, req.Z, req.Size)
	if err != nil {
		return errorResult(err)
	}
	img, err := render.ToImageWithRamp(values, req.Size, ramp, p.Gain)
	if err != nil {
		return errorResult(err)
	}

	pixels := js.Global().Get("Uint8ClampedArray").New(len(img.Pix))
	js.CopyBytesToJS(pixels, img.Pix)
	return map[string]any{
		"width":  req.Size,
		"height": req.Size,
		"pixels": pixels,
		"params": p.String(),
	}
}

// sample returns the intensity at (x, y, z) for JSON params.
func sample(this js.Value, args []js.Value) any {
	if len(args) < 4 {
		return errorResult(fmt.Errorf("want params, x, y, z"))
	}
	var req ParamsRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return errorResult(fmt.Errorf("failed to parse params: %w", err))
	}
	p, err := req.params()
	if err != nil {
		return errorResult(err)
	}
	v, err := noise.MustNew(p).Intensity3(args[1].Float(), args[2].Float(), args[3].Float())
	if err != nil {
		return errorResult(err)
	}
	return v
}

func main() {
	c := make(chan struct{})

	js.Global().Set("noisefieldRenderSlice", js.FuncOf(renderSlice))
	js.Global().Set("noisefieldSample", js.FuncOf(sample))

	fmt.Println("Noisefield WASM module loaded")
	<-c
}
