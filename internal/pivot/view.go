package pivot

import "github.com/AngelCh415/auction-tracker/internal/models"

type ColumnView struct {
	Date   string `json:"date"`
	Metric string `json:"metric"`
	Header string `json:"header"`
}

type RowView struct {
	CampaignName string     `json:"campaign_name"`
	Target       string     `json:"target"`
	Values       []*float64 `json:"values"`
}

// TableView is the JSON shape of a matrix; absent cells are null.
type TableView struct {
	Columns []ColumnView `json:"columns"`
	Rows    []RowView    `json:"rows"`
}

func (m *Matrix) View() TableView {
	tv := TableView{
		Columns: make([]ColumnView, 0, len(m.Columns)),
		Rows:    make([]RowView, 0, len(m.Rows)),
	}
	for _, c := range m.Columns {
		tv.Columns = append(tv.Columns, ColumnView{
			Date:   c.Date.Format(models.DateLayout),
			Metric: c.Metric.String(),
			Header: c.Header(),
		})
	}
	for _, r := range m.Rows {
		rv := RowView{CampaignName: r.CampaignName, Target: r.Target, Values: make([]*float64, len(m.Columns))}
		for i, c := range m.Columns {
			if v, ok := m.Value(r, c); ok {
				rv.Values[i] = &v
			}
		}
		tv.Rows = append(tv.Rows, rv)
	}
	return tv
}
