package platforms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/types"
)

func record(pairs ...any) *types.Record {
	r := types.NewRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i].(string), pairs[i+1])
	}
	return r
}

func TestDefaultRegistry_AllPlatforms(t *testing.T) {
	expected := []string{
		PlatformBing, PlatformCustom, PlatformFacebook, PlatformGoogle, PlatformGoogleLocalInventory,
		PlatformIdealo, PlatformOpenAI, PlatformPinterest, PlatformTrovaprezzi,
	}
	assert.Equal(t, expected, NewDefaultRegistry().List())

	for _, code := range expected {
		adapter, err := GetAdapter(code)
		require.NoError(t, err, code)
		assert.Equal(t, code, adapter.Code())
		assert.NotEmpty(t, adapter.SupportedFormats(), code)
		for _, m := range adapter.DefaultMappings() {
			assert.NoError(t, m.Validate(), "%s: %s", code, m.FeedAttribute)
		}
	}
}

func TestRegistry_LazySingleInstance(t *testing.T) {
	r := NewRegistry()
	builds := 0
	require.NoError(t, r.Register("acme", func() Adapter {
		builds++
		return NewBaseAdapter(Config{Code: "acme"})
	}))

	first, err := r.GetOrInit("acme")
	require.NoError(t, err)
	second, err := r.GetOrInit("acme")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
}

type notAnAdapter struct{}

func TestRegistry_RegisterValidatesCandidate(t *testing.T) {
	r := NewRegistry()

	err := r.Register("broken", notAnAdapter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not implement platforms.Adapter")

	assert.Error(t, r.Register("nil", nil))
	assert.Error(t, r.Register("", NewCustomAdapter()))

	require.NoError(t, r.Register("instance", NewCustomAdapter()))
	assert.Error(t, r.Register("instance", NewCustomAdapter()), "duplicate code")
	assert.True(t, r.IsRegistered("instance"))

	_, err = r.GetOrInit("missing")
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	r.Unregister("instance")
	assert.False(t, r.IsRegistered("instance"))
}

func TestCategoryKeys(t *testing.T) {
	tests := []struct {
		code     string
		supports bool
		key      string
	}{
		{PlatformGoogle, true, KeyGoogleCategory},
		{PlatformFacebook, true, KeyGoogleCategory},
		{PlatformBing, true, KeyCategory},
		{PlatformIdealo, true, KeyCategory},
		{PlatformGoogleLocalInventory, false, ""},
		{PlatformCustom, false, ""},
	}
	for _, tt := range tests {
		adapter, err := GetAdapter(tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.supports, adapter.SupportsCategoryMapping(), tt.code)
		assert.Equal(t, tt.key, adapter.CategoryKey(), tt.code)
	}
}

func TestGoogle_ValidateProductData(t *testing.T) {
	google := NewGoogleAdapter()

	valid := record(
		"id", "SKU-1", "title", "Shirt", "description", "Cotton shirt",
		"link", "https://shop.test/shirt", "image_link", "https://shop.test/shirt.jpg",
		"availability", "in stock", "price", "20.00 USD", "gtin", "4006381333931",
	)
	assert.Empty(t, google.ValidateProductData(valid))

	invalid := record(
		"id", "SKU-2", "title", "", "description", "x",
		"link", "/relative", "image_link", "https://shop.test/a.jpg",
		"availability", "in stock", "price", "0.00 USD", "gtin", "12AB",
	)
	errs := google.ValidateProductData(invalid)
	assert.Contains(t, errs, "Missing required field: title")
	assert.Contains(t, errs, "price must be positive")
	assert.Contains(t, errs, "link must be an absolute URL")
	assert.Contains(t, errs, "Invalid GTIN format: 12AB")
}

func TestGoogle_TransformProductData(t *testing.T) {
	google := NewGoogleAdapter()
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'a'
	}

	row := record("id", "1", "title", string(long), "availability", "1", "sale_price", nil, "brand", "")
	out := google.TransformProductData(row)

	title, _ := out.Get("title")
	assert.Len(t, title, 150)
	availability, _ := out.Get("availability")
	assert.Equal(t, "in stock", availability)
	condition, _ := out.Get("condition")
	assert.Equal(t, "new", condition)
	assert.False(t, out.Has("sale_price"), "empty optional fields are dropped")
	assert.False(t, out.Has("brand"))

	ns, ok := google.(XMLNamespacer)
	require.True(t, ok)
	assert.Equal(t, "g:", ns.XMLFieldPrefix())
}

func TestOpenAI_AvailabilityVocabulary(t *testing.T) {
	out := NewOpenAIAdapter().TransformProductData(record("availability", "out of stock"))
	v, _ := out.Get("availability")
	assert.Equal(t, "out_of_stock", v)
}

func TestCustom_PassesThrough(t *testing.T) {
	custom := NewCustomAdapter()
	row := record("anything", "", "x", 1)

	assert.Empty(t, custom.ValidateProductData(row))
	assert.Equal(t, []string{"anything", "x"}, custom.TransformProductData(row).Keys())
	assert.Empty(t, custom.DefaultMappings())
	assert.Len(t, custom.SupportedFormats(), 5)
}
