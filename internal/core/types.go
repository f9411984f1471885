package core

import "wellcore/pkg/domain"

type (
	EntityType        = domain.EntityType
	Entity            = domain.Entity
	Identity          = domain.Identity
	Well              = domain.Well
	Lease             = domain.Lease
	ProductionRecord  = domain.ProductionRecord
	Partner           = domain.Partner
	AFE               = domain.AFE
	Vendor            = domain.Vendor
	OwnerPayment      = domain.OwnerPayment
	Change            = domain.Change
	Action            = domain.Action
	Tx                = domain.Tx
	Repository        = domain.Repository
	RepositoryFactory = domain.RepositoryFactory
	Store             = domain.Store
)

const (
	EntityWell             = domain.EntityWell
	EntityLease            = domain.EntityLease
	EntityProductionRecord = domain.EntityProductionRecord
	EntityPartner          = domain.EntityPartner
	EntityAFE              = domain.EntityAFE
	EntityVendor           = domain.EntityVendor
	EntityOwnerPayment     = domain.EntityOwnerPayment
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
