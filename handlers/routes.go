package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"whiteboardAPI/middleware"
)

// Routes bundles the API handlers so main and tests mount the same tree.
type Routes struct {
	Whiteboards *WhiteboardHandler
	Moderation  *ModerationHandler
	Voting      *VotingHandler
	Devices     *DeviceHandler
}

// Mount registers the websocket route on r and the REST API on api.
func (rt Routes) Mount(r *mux.Router, api *mux.Router, auth *middleware.Auth) {
	r.Handle("/api/v1/whiteboards/ws/{sessionID}", auth.RequireWebsocket(http.HandlerFunc(rt.Whiteboards.JoinWhiteboard)))

	v1 := api.PathPrefix("/api/v1").Subrouter()
	public := func(h http.HandlerFunc) http.Handler { return auth.Optional(h) }
	protected := func(h http.HandlerFunc) http.Handler { return auth.Require(h) }

	v1.Handle("/whiteboards", public(rt.Whiteboards.ListWhiteboards)).Methods(http.MethodGet)
	v1.Handle("/whiteboards", protected(rt.Whiteboards.CreateWhiteboard)).Methods(http.MethodPost)
	v1.Handle("/whiteboards/{sessionID}", public(rt.Whiteboards.GetWhiteboard)).Methods(http.MethodGet)
	v1.Handle("/whiteboards/{sessionID}/invite", public(rt.Whiteboards.GetInvite)).Methods(http.MethodGet)

	v1.Handle("/whiteboards/{sessionID}/elements", protected(rt.Whiteboards.ListElements)).Methods(http.MethodGet)
	v1.Handle("/whiteboards/{sessionID}/elements", protected(rt.Whiteboards.CreateElement)).Methods(http.MethodPost)
	v1.Handle("/whiteboards/{sessionID}/elements/{elementID}", protected(rt.Whiteboards.GetElement)).Methods(http.MethodGet)
	v1.Handle("/whiteboards/{sessionID}/elements/{elementID}", protected(rt.Whiteboards.UpdateElement)).Methods(http.MethodPatch)

	v1.Handle("/whiteboards/{sessionID}/moderation", protected(rt.Moderation.GetConfig)).Methods(http.MethodGet)
	v1.Handle("/whiteboards/{sessionID}/moderation", protected(rt.Moderation.UpdateConfig)).Methods(http.MethodPut)
	v1.Handle("/whiteboards/{sessionID}/moderation/run", protected(rt.Moderation.ModerateAll)).Methods(http.MethodPost)
	v1.Handle("/whiteboards/{sessionID}/elements/{elementID}/approve", protected(rt.Moderation.Approve)).Methods(http.MethodPost)
	v1.Handle("/whiteboards/{sessionID}/elements/{elementID}/reject", protected(rt.Moderation.Reject)).Methods(http.MethodPost)

	v1.Handle("/whiteboards/{sessionID}/filters", public(rt.Voting.GetFilters)).Methods(http.MethodGet)
	v1.Handle("/whiteboards/{sessionID}/filters/vote", protected(rt.Voting.Vote)).Methods(http.MethodPost)
	v1.Handle("/whiteboards/{sessionID}/filters/vote", protected(rt.Voting.Unvote)).Methods(http.MethodDelete)

	v1.Handle("/devices", protected(rt.Devices.RegisterDevice)).Methods(http.MethodPost)
	v1.Handle("/devices/{token}", protected(rt.Devices.UnregisterDevice)).Methods(http.MethodDelete)
}
