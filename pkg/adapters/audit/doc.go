// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-auth.
//
// go-passkey-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

/*
Package audit records security-relevant authentication events.

# Overview

An AuditAdapter receives one AuditEvent per account registration, sign-in
attempt, token refresh, passkey enrollment and clone detection. Events are
independent of the application log: they carry the acting principal, the
outcome and the request's correlation ID so an operator can reconstruct
what happened to an account.

# Implementations

LogAuditAdapter writes each event as a structured log record through a
logger.Logger. It is what the server uses.

MemoryAuditAdapter keeps the most recent events in memory and answers
queries. It suits tests and development.

NopAuditAdapter discards everything.

# Usage

	auditor := audit.NewLogAuditAdapter(log)
	svc, err := authn.NewService(authn.Params{
	    // ...
	    Audit: auditor,
	})

A failing adapter never fails the operation being audited; the caller logs
the error and carries on.
*/
package audit
