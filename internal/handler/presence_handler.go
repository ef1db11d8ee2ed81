/*
Package handler provides the HTTP handler for presence status queries.

This endpoint is the polling fallback used by clients whose realtime socket is
down; it reads the same presence registry through the dispatcher's event loop,
so polled and pushed answers never disagree.
*/
package handler

import (
	"net/http"
	"strings"

	"ripplechat/internal/pkg/errs"
	"ripplechat/internal/pkg/logx"
	"ripplechat/internal/pkg/randx"
	"ripplechat/internal/pkg/resp"
)

// MaxStatusQueryIDs caps the number of users one status query may name.
const MaxStatusQueryIDs = 100

// HandlePresenceStatus returns a point-in-time presence snapshot for the users
// named in the comma-separated "ids" query parameter.
func HandlePresenceStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, customErr := resolveIdentity(r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		idsParam := r.URL.Query().Get("ids")
		if idsParam == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var userIDs []string
		for _, id := range strings.Split(idsParam, ",") {
			trimmed := strings.TrimSpace(id)
			if trimmed == "" {
				continue
			}
			if !randx.IsValidID(trimmed) {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			userIDs = append(userIDs, trimmed)
		}

		if len(userIDs) == 0 || len(userIDs) > MaxStatusQueryIDs {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		statuses, err := deps.Dispatcher.Status(r.Context(), userIDs)
		if err != nil {
			logx.Error(err, "Presence status query failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, statuses)
	}
}
