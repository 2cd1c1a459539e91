package validation

import (
	"github.com/gin-gonic/gin/binding"

	"github.com/lloydmeta/infodocs/internal/domain/infodoc"

	"github.com/rs/zerolog/log"
	"gopkg.in/go-playground/validator.v9"
)

func SetUpValidators() {
	log.Info().Msg("Setting up custom validators")
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation(OwnerIdValidatorTag, OwnerIdValidator)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up Owner id validator")
		}
	}
}

var OwnerIdValidatorTag = "ownerId"
var OwnerIdValidator validator.Func = func(fl validator.FieldLevel) bool {
	ownerId, ok := fl.Field().Interface().(infodoc.OwnerId)
	if ok {
		if _, err := infodoc.OwnerIdFromString(string(ownerId)); err != nil {
			return false
		}
	}
	return true
}
