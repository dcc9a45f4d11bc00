package httpin

import "github.com/nathantilsley/chart-stack/internal/stack/domain"

type errorBody struct {
	Error string `json:"error"`
}

type repositoryBody struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type namespaceBody struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
	Age    string `json:"age,omitempty"`
}

type chartBody struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	DisplayName   string         `json:"display_name"`
	ChartVersion  string         `json:"chart_version"`
	AppVersion    string         `json:"app_version,omitempty"`
	Revision      int            `json:"revision"`
	Namespace     string         `json:"namespace"`
	State         string         `json:"state"`
	Updated       string         `json:"updated,omitempty"`
	AccessAddress string         `json:"access_address"`
	Values        map[string]any `json:"values,omitempty"`
}

func toChartBody(r domain.Release) chartBody {
	return chartBody{
		ID:            r.ID,
		Name:          r.Name,
		DisplayName:   r.DisplayName(),
		ChartVersion:  r.ChartVersion,
		AppVersion:    r.AppVersion,
		Revision:      r.Revision,
		Namespace:     r.Namespace,
		State:         r.State,
		Updated:       r.Updated,
		AccessAddress: r.AccessAddress(),
		Values:        r.Values,
	}
}

type createChartBody struct {
	RepoName    string         `json:"repo_name"`
	ChartName   string         `json:"chart_name"`
	Namespace   string         `json:"namespace"`
	ReleaseName string         `json:"release_name,omitempty"`
	Version     string         `json:"chart_version,omitempty"`
	Values      map[string]any `json:"values,omitempty"`
}

type updateChartBody struct {
	Values map[string]any `json:"values"`
}

type rollbackBody struct {
	Revision int `json:"revision"`
}

type chartEntryBody struct {
	Key             string         `json:"key"`
	Name            string         `json:"name"`
	Namespace       string         `json:"namespace,omitempty"`
	CreateNamespace bool           `json:"create_namespace,omitempty"`
	Version         string         `json:"version,omitempty"`
	ReleaseName     string         `json:"release_name"`
	Values          map[string]any `json:"values,omitempty"`
	TplValues       map[string]any `json:"tplValues,omitempty"`
}

type descriptorBody struct {
	Repositories []repositoryBody `json:"repositories"`
	Charts       []chartEntryBody `json:"charts"`
}

func toDescriptorBody(d domain.Descriptor) descriptorBody {
	out := descriptorBody{
		Repositories: make([]repositoryBody, 0, len(d.Repositories)),
		Charts:       make([]chartEntryBody, 0, len(d.Charts)),
	}
	for _, r := range d.Repositories {
		out.Repositories = append(out.Repositories, repositoryBody(r))
	}
	for _, c := range d.Charts {
		out.Charts = append(out.Charts, chartEntryBody{
			Key:             c.Key,
			Name:            c.Name,
			Namespace:       c.Namespace,
			CreateNamespace: c.CreateNamespace,
			Version:         c.Version,
			ReleaseName:     c.Release(),
			Values:          c.Values,
			TplValues:       c.TplValues,
		})
	}
	return out
}

type stackBody struct {
	Descriptor descriptorBody `json:"descriptor"`
	Valid      bool           `json:"valid"`
	Errors     []string       `json:"errors"`
}

type applyResultBody struct {
	Chart     string `json:"chart"`
	Release   string `json:"release"`
	Namespace string `json:"namespace"`
	Status    string `json:"status"`
	Installed bool   `json:"installed,omitempty"`
	Diff      string `json:"diff,omitempty"`
	Summary   string `json:"summary"`
}

type applyBody struct {
	DryRun    bool              `json:"dry_run"`
	Unchanged int               `json:"unchanged"`
	Changed   int               `json:"changed"`
	Errors    int               `json:"errors"`
	Results   []applyResultBody `json:"results"`
}
