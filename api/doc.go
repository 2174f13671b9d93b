/*
Package api defines the wire contract of the registry service: the routes,
the request bodies and the error envelope shared by the HTTP handler
(package httpserver) and the HTTP NameRegistry client (package registry).

# Routes

	POST /api/v1/domains/{domain}/reservations
	     {"assigned_user": "johndoe"}
	  -> 200 {"domain": "nycoa", "sequence": 7, "hostname": "007-johndoe", "assigned_user": "johndoe"}

	POST /api/v1/domains/{domain}/reservations/{sequence}/joined
	     {"notes": "Provisioned via computer-setup"}
	  -> 204

# Errors

Every failure carries an ErrorResponse. The code field maps one-to-one onto
the sentinel errors of package interfaces, so a client can tell a retryable
conflict (409, "conflict") from a terminal missing row (404, "not_found").
*/
package api
