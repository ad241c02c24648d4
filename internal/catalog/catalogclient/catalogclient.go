package catalogclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/scrapmart/internal/catalog"
	"github.com/iurnickita/scrapmart/internal/model"
)

const materialsPath = "/api/materials"

type catalogClient struct {
	serviceAddr string
	client      *resty.Client
}

func NewCatalogClient(serviceAddr string, timeout time.Duration) catalog.Gateway {
	return &catalogClient{
		serviceAddr: serviceAddr,
		client:      resty.New().SetTimeout(timeout),
	}
}

func (c *catalogClient) ActiveMaterials(ctx context.Context) ([]model.Material, error) {
	setreq := c.client.R().SetContext(ctx)
	setreq.Method = http.MethodGet
	setreq.URL = c.serviceAddr + materialsPath
	setresp, err := setreq.Send()
	if err != nil {
		return nil, err
	}

	switch setresp.StatusCode() {
	case http.StatusOK:
		var materials []model.Material
		if err = json.Unmarshal(setresp.Body(), &materials); err != nil {
			return nil, err
		}
		// неактивные позиции не предлагаются, даже если их вернул каталог
		return catalog.Active(materials), nil
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("catalog request status: %d", setresp.StatusCode())
	}
}
