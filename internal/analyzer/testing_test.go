package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/pkg/types"
)

func TestTesting_JavaScript(t *testing.T) {
	src := `describe('cart', () => {
  it('adds items', () => {
    expect(add(1)).toBe(1);
  });

  it.only('removes items', () => {
    expect(remove(1)).toBe(0);
  });

  it.skip('clears', () => {
    expect(clear()).toEqual([]);
  });

  it('renders', () => {
    render(cart);
  });
});
`
	f := sourceOf("src/cart.test.js", types.LangJavaScript, types.RoleTest)
	issues := runAnalyzer(t, NewTestingAnalyzer(DefaultOptions()), f, src)

	focused := withTitle(issues, "Focused Test")
	require.Len(t, focused, 1)
	assert.Equal(t, 6, focused[0].LineNumber)
	assert.Equal(t, types.SeverityHigh, focused[0].Severity)

	assert.Equal(t, []int{10}, issueLines(withTitle(issues, "Skipped Test")))

	empty := withTitle(issues, "Test Without Assertions")
	require.Len(t, empty, 1)
	assert.Equal(t, 14, empty[0].LineNumber)
	assert.Equal(t, 16, empty[0].EndLine)
	assert.Contains(t, empty[0].Description, "'renders'")
	assert.Equal(t, types.CategoryTesting, empty[0].Category)
}

func TestTesting_Python(t *testing.T) {
	src := `import pytest


@pytest.mark.skip(reason="flaky")
def test_remote():
    assert fetch() == 1


def test_smoke():
    run()


class TestCart:
    def test_total(self):
        self.assertEqual(total(), 3)

    def helper(self):
        pass
`
	f := sourceOf("tests/test_cart.py", types.LangPython, types.RoleTest)
	issues := runAnalyzer(t, NewTestingAnalyzer(DefaultOptions()), f, src)

	assert.Equal(t, []int{4}, issueLines(withTitle(issues, "Skipped Test")))
	empty := withTitle(issues, "Test Without Assertions")
	require.Len(t, empty, 1)
	assert.Equal(t, 9, empty[0].LineNumber)
	assert.Contains(t, empty[0].Description, "'test_smoke'")
}

func TestTesting_Go(t *testing.T) {
	src := `package cart

import "testing"

func TestMain(m *testing.M) {
	m.Run()
}

func TestAdd(t *testing.T) {
	if add(1) != 1 {
		t.Fatal("bad")
	}
}

func TestHelper(t *testing.T) {
	check(t, add(1))
}

func TestNothing(t *testing.T) {
	_ = add(1)
}

func TestLater(t *testing.T) {
	t.Skip("pending")
}
`
	f := sourceOf("cart/cart_test.go", types.LangGo, types.RoleTest)
	issues := runAnalyzer(t, NewTestingAnalyzer(DefaultOptions()), f, src)

	assert.Equal(t, []int{24}, issueLines(withTitle(issues, "Skipped Test")))
	empty := withTitle(issues, "Test Without Assertions")
	require.Len(t, empty, 2)
	assert.Contains(t, empty[0].Description, "'TestNothing'")
	assert.Contains(t, empty[1].Description, "'TestLater'")
}

func TestTesting_OnlyTestFiles(t *testing.T) {
	a := NewTestingAnalyzer(DefaultOptions())
	assert.False(t, a.Applicable(sourceOf("cart.js", types.LangJavaScript, types.RoleCore)))
	assert.True(t, a.Applicable(sourceOf("cart.spec.ts", types.LangTypeScript, types.RoleTest)))
	assert.False(t, a.Applicable(sourceOf("Cart.java", types.LangJava, types.RoleTest)))
}
