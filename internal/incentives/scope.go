package incentives

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

// Scope is a resolution request. Nil fields are unspecified.
type Scope struct {
	VerticalID    *uuid.UUID
	SupplierID    *uuid.UUID
	UserTypeID    *uuid.UUID
	ProductTypeID *uuid.UUID
	ProductID     *uuid.UUID
	Action        *enums.RewardAction
}

// Fields are the scope columns of a configuration row. Nil fields are wildcards.
type Fields struct {
	VerticalID    *uuid.UUID
	SupplierID    *uuid.UUID
	UserTypeID    *uuid.UUID
	ProductTypeID *uuid.UUID
	ProductID     *uuid.UUID
}

func (s Scope) fields() [5]*uuid.UUID {
	return [5]*uuid.UUID{s.VerticalID, s.SupplierID, s.UserTypeID, s.ProductTypeID, s.ProductID}
}

func (f Fields) fields() [5]*uuid.UUID {
	return [5]*uuid.UUID{f.VerticalID, f.SupplierID, f.UserTypeID, f.ProductTypeID, f.ProductID}
}

// compatible reports whether every non-nil rule field equals the request field or the
// request left it unspecified.
func (f Fields) compatible(s Scope) bool {
	req := s.fields()
	for i, col := range f.fields() {
		if col == nil || req[i] == nil {
			continue
		}
		if *col != *req[i] {
			return false
		}
	}
	return true
}

// rank is compared lexicographically; see better.
type rank struct {
	specificity     int
	productMatched  bool
	supplierMatched bool
	unconstrained   int
}

func rankOf(f Fields, s Scope) rank {
	var r rank
	req := s.fields()
	for i, col := range f.fields() {
		if col == nil {
			continue
		}
		if req[i] == nil {
			r.unconstrained++
			continue
		}
		if *col == *req[i] {
			r.specificity++
		}
	}
	r.productMatched = f.ProductID != nil && s.ProductID != nil && *f.ProductID == *s.ProductID
	r.supplierMatched = f.SupplierID != nil && s.SupplierID != nil && *f.SupplierID == *s.SupplierID
	return r
}

// better reports whether a outranks b.
func (a rank) better(b rank) bool {
	if a.specificity != b.specificity {
		return a.specificity > b.specificity
	}
	if a.productMatched != b.productMatched {
		return a.productMatched
	}
	if a.supplierMatched != b.supplierMatched {
		return a.supplierMatched
	}
	return a.unconstrained < b.unconstrained
}
