// Command audit-receiver is a development endpoint for the audit webhook
// sink. It logs every record it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/privacyshield/privacyshield/internal/audit"
)

func main() {
	addr := flag.String("addr", ":8099", "listen address for audit receiver")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/audit", handleRecord)
	mux.HandleFunc("/", handleRecord)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("audit receiver listening on %s (POST JSON to /audit)...", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("receiver error: %v", err)
	}
}

func handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()

	var rec audit.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		log.Printf("rejected audit payload: %v", err)
		http.Error(w, "invalid audit record", http.StatusBadRequest)
		return
	}

	gen := "-"
	if rec.Generation != nil {
		gen = rec.Generation.Provider + "/" + rec.Generation.Status
	}
	log.Printf("audit record id=%s score=%d entities=%d types=%v in=%d out=%d generation=%s sample=%q",
		rec.ID, rec.PrivacyScore, rec.EntityCount, rec.EntityTypes, rec.InputLength, rec.OutputLength, gen, rec.RedactedSample)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
