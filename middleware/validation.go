package middleware

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

// ValidateRequestBody decodes the JSON body into T and validates it before
// calling handler.
func ValidateRequestBody[T any](validate *validator.Validate, handler func(*fasthttp.RequestCtx, *T) error) types.HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		body := new(T)

		if raw := ctx.PostBody(); len(raw) > 0 {
			if err := utils.Unmarshal(raw, body); err != nil {
				return apierrors.NewValidationError("Invalid JSON in request body", nil)
			}
		}

		if err := validateStruct(validate, body); err != nil {
			return err
		}

		return handler(ctx, body)
	}
}

// ValidateQueryParams decodes the query string into T using `query` tags.
// Repeated keys and comma separated values both fill slices.
func ValidateQueryParams[T any](validate *validator.Validate, handler func(*fasthttp.RequestCtx, *T) error) types.HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		params := make(map[string]interface{})
		ctx.QueryArgs().VisitAll(func(key, value []byte) {
			k, v := string(key), string(value)
			switch existing := params[k].(type) {
			case nil:
				params[k] = v
			case string:
				params[k] = []string{existing, v}
			case []string:
				params[k] = append(existing, v)
			}
		})

		query := new(T)

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "query",
			WeaklyTypedInput: true,
			Result:           query,
			DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		})
		if err != nil {
			return apierrors.NewInternalError(err)
		}

		if err := decoder.Decode(params); err != nil {
			return apierrors.NewValidationError("Invalid query parameters", map[string]string{
				"query": err.Error(),
			})
		}

		if err := validateStruct(validate, query); err != nil {
			return err
		}

		return handler(ctx, query)
	}
}

func validateStruct(validate *validator.Validate, target interface{}) error {
	err := validate.Struct(target)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return apierrors.NewValidationError("Validation failed", apierrors.FormatValidationErrors(validationErrors))
	}

	return apierrors.NewValidationError(err.Error(), nil)
}
