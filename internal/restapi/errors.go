package restapi

import (
	"github.com/labstack/echo/v4"

	"marketdata-backend/internal/apierr"
)

// errJSON writes a `{error: string}` validation-error body, mapping
// taxonomy errors to their corresponding HTTP status.
func errJSON(c echo.Context, err error) error {
	return c.JSON(apierr.HTTPStatus(err), map[string]string{"error": err.Error()})
}

// subscribeResult writes the `{success:false,error:...}` shape subscribe
// endpoints use, with 200 on both outcomes.
func subscribeResult(c echo.Context, err error) error {
	if err != nil {
		return c.JSON(200, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(200, map[string]interface{}{"success": true})
}
