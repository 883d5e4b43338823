package validation

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/iudanet/chartsync/internal/models"
)

// RecordIDPattern определяет допустимый формат ключа записи.
// Покрывает UUID сервера и временные ключи клиента вида temp_1700000000_ab12.
var RecordIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// SubjectPattern определяет допустимый формат subject в JWT
// Только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
// Длина: 3-32 символа
var SubjectPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// MinPassphraseLen минимальная длина пароля локального хранилища
const MinPassphraseLen = 12

// ValidateTable checks that name is one of the known backend tables.
func ValidateTable(name string) (models.Table, error) {
	if name == "" {
		return "", fmt.Errorf("table cannot be empty")
	}
	return models.ParseTable(name)
}

// ValidateRecordID проверяет ключ записи из URL или payload
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if !RecordIDPattern.MatchString(id) {
		return fmt.Errorf("record id %q can only contain letters, digits, '_', '-', '.', ':' and be at most 128 characters", id)
	}
	return nil
}

// ValidateRecordData checks that a request body is a JSON object whose id,
// when present, is a valid record id.
func ValidateRecordData(data []byte) (map[string]json.RawMessage, error) {
	fields, err := models.DecodeFields(data)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("record cannot be empty")
	}
	if _, ok := fields[models.RecordIDField]; ok {
		id, err := models.PayloadID(data)
		if err != nil {
			return nil, err
		}
		if err := ValidateRecordID(id); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// ValidateSubject проверяет имя пользователя, для которого выпускается токен
func ValidateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}
	if !SubjectPattern.MatchString(subject) {
		return fmt.Errorf("subject can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_), 3-32 characters")
	}
	return nil
}

// ValidatePassphrase проверяет минимальные требования к паролю хранилища
func ValidatePassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}
	if len(passphrase) < MinPassphraseLen {
		return fmt.Errorf("passphrase must be at least %d characters long", MinPassphraseLen)
	}
	return nil
}
