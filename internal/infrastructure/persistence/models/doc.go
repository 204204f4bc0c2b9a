// Package models contains the GORM persistence models of the ledger.
// Domain aggregates stay free of ORM tags; repositories convert with
// FromDomain and ToDomain at the boundary.
package models
