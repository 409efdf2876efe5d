package server

import "context"

type handlerFunc func(ctx context.Context, req *request) (*Response, error)

type rowIDMode int

const (
	rowIDNone rowIDMode = iota
	rowIDOptional
	rowIDRequired
)

type route struct {
	handler handlerFunc
	// write routes hold the write lock for the whole request.
	write bool
	// spreadsheetLevel routes do not address a single sheet.
	spreadsheetLevel bool
	rowID            rowIDMode
}

func (s *Server) buildRoutes() map[string]route {
	return map[string]route{
		"GET":            {handler: s.handleGet, rowID: rowIDOptional},
		"GET_LAST":       {handler: s.handleGetLast},
		"FIND":           {handler: s.handleFind},
		"PAGINATED_GET":  {handler: s.handlePaginatedGet},
		"EXPORT":         {handler: s.handleExport},
		"AGGREGATE":      {handler: s.handleAggregate},
		"GET_ROWS":       {handler: s.handleGetRows},
		"GET_COLUMNS":    {handler: s.handleGetColumns},
		"GET_ALL_CELLS":  {handler: s.handleGetAllCells},
		"GET_RANGE":      {handler: s.handleGetRange},
		"GET_DATA_BLOCK": {handler: s.handleGetDataBlock},
		"GET_SHEETS":     {handler: s.handleGetSheets, spreadsheetLevel: true},
		"GET_CSV":        {handler: s.handleGetCSV, spreadsheetLevel: true},

		"POST":          {handler: s.handlePost, write: true},
		"DYNAMIC_POST":  {handler: s.handleDynamicPost, write: true},
		"UPSERT":        {handler: s.handleUpsert, write: true},
		"BATCH_UPSERT":  {handler: s.handleBatchUpsert, write: true},
		"PUT":           {handler: s.handlePut, write: true, rowID: rowIDRequired},
		"DELETE":        {handler: s.handleDelete, write: true, rowID: rowIDRequired},
		"BULK_DELETE":   {handler: s.handleBulkDelete, write: true},
		"BATCH_UPDATE":  {handler: s.handleBatchUpdate, write: true},
		"ADD_COLUMN":    {handler: s.handleAddColumn, write: true},
		"EDIT_COLUMN":   {handler: s.handleEditColumn, write: true},
		"REMOVE_COLUMN": {handler: s.handleRemoveColumn, write: true},
		"RANGE_UPDATE":  {handler: s.handleRangeUpdate, write: true},
	}
}

// IsWriteMethod reports whether method mutates the spreadsheet.
func (s *Server) IsWriteMethod(method string) bool {
	return s.routes[method].write
}
