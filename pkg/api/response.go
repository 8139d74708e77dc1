// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/sashimi-data/sashimi/pkg/dataset"
	"github.com/sashimi-data/sashimi/pkg/eval"
	"github.com/sashimi-data/sashimi/pkg/project"
	"github.com/sashimi-data/sashimi/pkg/util/log"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("cannot write response: %v", err)
	}
}

// writePrettyJSON indents its output, for the human-facing banner.
func writePrettyJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		log.Errorf("cannot write response: %v", err)
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text))
}

// writeError emits the {"detail": ...} error shape.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// respondError maps a component error to its HTTP status.
func respondError(w http.ResponseWriter, err error) {
	switch err := err.(type) {
	case *eval.CompileError:
		writeError(w, http.StatusBadRequest, err.Error())
	case *dataset.InputError:
		writeError(w, http.StatusBadRequest, err.Error())
	case *dataset.OpNotAllowedError:
		writeError(w, http.StatusUnauthorized, err.Error())
	case *authError:
		writeError(w, http.StatusUnauthorized, err.Error())
	case *project.InvalidNameError:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case *project.AlreadyExistsError:
		writeError(w, http.StatusConflict, err.Error())
	default:
		if err == project.ErrSecretMismatch {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		log.Errorf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
