package audit

import "time"

// EntryResponse is the wire shape of an auditoria row.
type EntryResponse struct {
	ID       int64          `json:"id"`
	Action   string         `json:"accion"`
	Module   string         `json:"modulo"`
	Table    string         `json:"tabla"`
	UserID   *int64         `json:"id_usuario"`
	RoleName string         `json:"nombre_rol"`
	Detail   map[string]any `json:"details"`
	At       time.Time      `json:"timestamp"`
}

// ListResponse wraps a page of entries.
type ListResponse struct {
	Rows   []EntryResponse `json:"rows"`
	Paging PagingResponse  `json:"paging"`
}

// PagingResponse mirrors PagingInfo on the wire.
type PagingResponse struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

func toEntryResponse(e Entry) EntryResponse {
	return EntryResponse{
		ID:       e.ID,
		Action:   e.Action,
		Module:   e.Module,
		Table:    e.Table,
		UserID:   e.UserID,
		RoleName: e.RoleName,
		Detail:   e.Detail,
		At:       e.At,
	}
}

func toListResponse(res Result) ListResponse {
	rows := make([]EntryResponse, len(res.Rows))
	for i, e := range res.Rows {
		rows[i] = toEntryResponse(e)
	}
	return ListResponse{
		Rows: rows,
		Paging: PagingResponse{
			Page:     res.Paging.Page,
			PageSize: res.Paging.PageSize,
			HasNext:  res.Paging.HasNext,
			PrevPage: res.Paging.PrevPage,
			NextPage: res.Paging.NextPage,
		},
	}
}
