package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"snapconvert/internal/formats"
)

// FormatsResponse lists every family and legal conversion pair.
type FormatsResponse struct {
	Families map[formats.Family][]formats.Format `json:"families"`
	Formats  []formats.Format                    `json:"formats"`
	Pairs    []formats.Pair                      `json:"pairs"`
}

// TargetsResponse lists the targets reachable from one format.
type TargetsResponse struct {
	Format  formats.Format   `json:"format"`
	Family  formats.Family   `json:"family"`
	Targets []formats.Format `json:"targets"`
}

// GetFormats returns the supported formats and conversion pairs
func (h *Handlers) GetFormats(w http.ResponseWriter, _ *http.Request) {
	families := make(map[formats.Family][]formats.Format, len(formats.Families))
	for _, f := range formats.Families {
		families[f] = formats.Members(f)
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSONStatus(w, http.StatusOK, FormatsResponse{
		Families: families,
		Formats:  formats.SupportedFormats(),
		Pairs:    formats.Pairs(),
	})
}

// GetTargets returns the formats a given input format can be converted to
func (h *Handlers) GetTargets(w http.ResponseWriter, r *http.Request) {
	ext := formats.Normalize(mux.Vars(r)["ext"])
	if !formats.IsSupported(string(ext)) {
		supported := formats.SupportedFormats()
		names := make([]string, len(supported))
		for i, f := range supported {
			names[i] = string(f)
		}
		writeJSONError(w, "Unsupported format", http.StatusNotFound,
			"supported formats: "+strings.Join(names, ", "))
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSONStatus(w, http.StatusOK, TargetsResponse{
		Format:  ext,
		Family:  formats.ResolveFamily(string(ext)),
		Targets: formats.AvailableTargets(string(ext)),
	})
}
