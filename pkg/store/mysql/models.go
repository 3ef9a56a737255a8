package mysql

import "slumber/pkg/store/mysql/model"

type (
	// Database models
	Workload          = model.Workload
	WorkloadTemplate  = model.WorkloadTemplate
	Account           = model.Account
	CreditTransaction = model.CreditTransaction

	// Custom JSON types
	StringMap = model.StringMap
)
