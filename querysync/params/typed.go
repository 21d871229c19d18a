package params

import "github.com/arthur-debert/querysync/types"

// APIParamsFrom extracts the typed reserved keys from p. Missing or
// malformed entries fall back to the global defaults.
func APIParamsFrom(p types.Params) types.APIParams {
	out := types.APIParams{
		Filter:     types.Filter{},
		Pagination: types.Pagination{Page: DefaultPage, PageSize: DefaultPageSize},
		Sorts:      []types.Sort{},
	}

	if f, ok := Normalize(p[types.KeyFilter]).(map[string]any); ok {
		out.Filter = types.Filter(f)
	}

	if CheckAPIParam(types.KeyPagination, p[types.KeyPagination]) {
		m := Normalize(p[types.KeyPagination]).(map[string]any)
		page, okPage := Int(m["page"])
		size, okSize := Int(m["pageSize"])
		if okPage && okSize && page > 0 && size > 0 {
			out.Pagination = types.Pagination{Page: page, PageSize: size}
		}
	}

	if CheckAPIParam(types.KeySorts, p[types.KeySorts]) {
		for _, entry := range Normalize(p[types.KeySorts]).([]any) {
			m := entry.(map[string]any)
			out.Sorts = append(out.Sorts, types.Sort{
				Key:   m["key"].(string),
				Order: types.SortOrder(m["order"].(string)),
			})
		}
	}

	return out
}

// FromAPIParams converts typed reserved values back into a parameter map
func FromAPIParams(api types.APIParams) types.Params {
	filter := map[string]any{}
	for k, v := range api.Filter {
		filter[k] = Normalize(v)
	}
	sorts := make([]any, len(api.Sorts))
	for i, s := range api.Sorts {
		sorts[i] = Normalize(s)
	}
	return types.Params{
		types.KeyFilter:     filter,
		types.KeyPagination: Normalize(api.Pagination),
		types.KeySorts:      sorts,
	}
}
