package population

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/angelmondragon/incentives-backend/internal/referencedata"
	pkgbigquery "github.com/angelmondragon/incentives-backend/pkg/bigquery"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
	"github.com/angelmondragon/incentives-backend/pkg/logger"
)

type warehouse interface {
	Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error)
	Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error
	TableRef(table string) string
	UserPointsTable() string
}

type uriBuilder interface {
	GSURI(bucket, object string) string
}

type rowIterator interface {
	Next(dst interface{}) error
}

const userColumns = "user_id, points, name, phone, district_id, governorate_id, segment_id"

// userRow mirrors the monthly user points view.
type userRow struct {
	UserID        string              `bigquery:"user_id"`
	Points        int64               `bigquery:"points"`
	Name          bigquery.NullString `bigquery:"name"`
	Phone         bigquery.NullString `bigquery:"phone"`
	DistrictID    bigquery.NullString `bigquery:"district_id"`
	GovernorateID bigquery.NullString `bigquery:"governorate_id"`
	SegmentID     bigquery.NullString `bigquery:"segment_id"`
}

// BigQuerySource reads users from the warehouse and entity populations from reference data.
type BigQuerySource struct {
	bq           warehouse
	refdata      referencedata.Repository
	storage      uriBuilder
	bucket       string
	exportPrefix string
	logg         *logger.Logger
}

type BigQuerySourceParams struct {
	Warehouse    warehouse
	RefData      referencedata.Repository
	Storage      uriBuilder
	Bucket       string
	ExportPrefix string
	Logger       *logger.Logger
}

func NewBigQuerySource(params BigQuerySourceParams) (*BigQuerySource, error) {
	if params.Warehouse == nil {
		return nil, errors.New("bigquery client required")
	}
	if params.RefData == nil {
		return nil, errors.New("reference data repository required")
	}
	if params.Storage == nil {
		return nil, errors.New("storage client required")
	}
	if strings.TrimSpace(params.Bucket) == "" {
		return nil, errors.New("export bucket required")
	}
	return &BigQuerySource{
		bq:           params.Warehouse,
		refdata:      params.RefData,
		storage:      params.Storage,
		bucket:       params.Bucket,
		exportPrefix: strings.Trim(params.ExportPrefix, "/"),
		logg:         params.Logger,
	}, nil
}

func (s *BigQuerySource) Entities(ctx context.Context, method enums.DistributionMethod) ([]uuid.UUID, error) {
	var kind referencedata.Kind
	switch method {
	case enums.DistributionGovernorate:
		kind = referencedata.KindGovernorate
	case enums.DistributionDistrict:
		kind = referencedata.KindDistrict
	case enums.DistributionSegment:
		kind = referencedata.KindSegment
	default:
		return nil, nil
	}
	rows, err := s.refdata.ListEntities(ctx, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list "+string(kind)+" population")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// ExportUsers runs an EXPORT DATA statement into the export prefix and returns the gs:// link
// of the sharded CSV files.
func (s *BigQuerySource) ExportUsers(ctx context.Context, req Request) (string, error) {
	link := s.storage.GSURI(s.bucket, s.exportObject(req))
	sql := fmt.Sprintf(
		"EXPORT DATA OPTIONS(uri=@uri, format='CSV', overwrite=true, header=true) AS\nSELECT %s\nFROM %s\n%s",
		userColumns, s.bq.TableRef(s.bq.UserPointsTable()), userFilter,
	)
	params := append(filterParams(req), bigquery.QueryParameter{Name: "uri", Value: link})
	if err := s.bq.Exec(ctx, sql, params); err != nil {
		return "", mapWarehouseError(err, "export users")
	}
	if s.logg != nil {
		logCtx := s.logg.WithField(ctx, "export_uri", link)
		s.logg.Info(logCtx, "user population exported")
	}
	return link, nil
}

func (s *BigQuerySource) Users(ctx context.Context, req Request) ([]User, error) {
	sql := fmt.Sprintf("SELECT %s\nFROM %s\n%s\nORDER BY user_id", userColumns, s.bq.TableRef(s.bq.UserPointsTable()), userFilter)
	it, err := s.bq.Query(ctx, sql, filterParams(req))
	if err != nil {
		return nil, mapWarehouseError(err, "query users")
	}
	users, err := collectUsers(it)
	if err != nil {
		return nil, mapWarehouseError(err, "read users")
	}
	return users, nil
}

func (s *BigQuerySource) exportObject(req Request) string {
	object := fmt.Sprintf("%s/%04d-%02d/%s/users-*.csv", req.SupplierID, req.Year, req.Month, req.RunID)
	if s.exportPrefix == "" {
		return object
	}
	return s.exportPrefix + "/" + object
}

const userFilter = `WHERE supplier_id = @supplier_id
  AND vertical_id = @vertical_id
  AND year = @year
  AND month = @month
  AND (@user_type_id IS NULL OR user_type_id = @user_type_id)`

func filterParams(req Request) []bigquery.QueryParameter {
	userType := bigquery.NullString{}
	if req.UserTypeID != nil {
		userType = bigquery.NullString{StringVal: req.UserTypeID.String(), Valid: true}
	}
	return []bigquery.QueryParameter{
		{Name: "supplier_id", Value: req.SupplierID.String()},
		{Name: "vertical_id", Value: req.VerticalID.String()},
		{Name: "year", Value: req.Year},
		{Name: "month", Value: req.Month},
		{Name: "user_type_id", Value: userType},
	}
}

func collectUsers(it rowIterator) ([]User, error) {
	var users []User
	for {
		var row userRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			return users, nil
		}
		if err != nil {
			return nil, err
		}
		user, err := row.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
}

func (r userRow) toUser() (User, error) {
	id, err := uuid.Parse(r.UserID)
	if err != nil {
		return User{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id in snapshot")
	}
	return User{
		ID:            id,
		Points:        r.Points,
		Name:          r.Name.StringVal,
		Phone:         r.Phone.StringVal,
		DistrictID:    optionalUUID(r.DistrictID),
		GovernorateID: optionalUUID(r.GovernorateID),
		SegmentID:     optionalUUID(r.SegmentID),
	}, nil
}

func optionalUUID(v bigquery.NullString) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id, err := uuid.Parse(v.StringVal)
	if err != nil {
		return nil
	}
	return &id
}

func mapWarehouseError(err error, action string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if pkgbigquery.IsUnavailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
