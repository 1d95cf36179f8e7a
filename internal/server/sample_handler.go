package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MeKo-Tech/noisefield/internal/noise"
)

// SampleResponse is the JSON body of the sample endpoint.
type SampleResponse struct {
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Z         *float64    `json:"z,omitempty"`
	Intensity float64     `json:"intensity"`
	Color     noise.Color `json:"color"`
	Params    string      `json:"params"`
}

// SampleHandler answers /sample?x=&y=[&z=][&alpha=true] with one sample of
// field.
func SampleHandler(field *noise.Field) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		x, errX := parseFloatParam(q.Get("x"), "x")
		y, errY := parseFloatParam(q.Get("y"), "y")
		if err := errors.Join(errX, errY); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		alpha, _ := strconv.ParseBool(q.Get("alpha"))

		resp := SampleResponse{X: x, Y: y, Params: field.Params().String()}
		var c noise.Color
		var err error
		if v := q.Get("z"); v != "" {
			z, zerr := parseFloatParam(v, "z")
			if zerr != nil {
				http.Error(w, zerr.Error(), http.StatusBadRequest)
				return
			}
			resp.Z = &z
			c, err = field.Sample3(x, y, z, alpha)
		} else {
			c, err = field.Sample(x, y, alpha)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		resp.Color = c
		resp.Intensity = c.R

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func parseFloatParam(v, name string) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid parameter %q: %w", name, err)
	}
	return f, nil
}

// HealthHandler reports liveness.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}
}
